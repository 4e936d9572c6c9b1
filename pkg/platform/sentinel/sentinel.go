package sentinel

import "errors"

// Infrastructure facts returned by stores, optionally wrapped. Services translate
// them into domain errors; they are never shown to callers directly.
//
//   - ErrNotFound: record does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrExpired: stored material outlived its TTL
//   - ErrUnavailable: backing store could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
