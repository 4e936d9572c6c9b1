package models

import (
	"time"

	"zkbadge/internal/auth/zklogin"
	"zkbadge/pkg/domain"
)

// Session is the authenticated identity bound to one client.
//
// The ephemeral key and nonce are present only on a session created directly
// from a completed handshake. A session restored from storage carries the
// identity and admin flag alone and must log in again before signing ledger
// transactions.
type Session struct {
	ID        domain.SessionID
	ClientKey string
	Identity  Identity
	IsAdmin   bool
	Device    string
	Ephemeral *zklogin.EphemeralKey
	Nonce     string
	// MaxEpoch is the key validity bound committed in the nonce.
	MaxEpoch  uint64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CanSign reports whether the session still holds a live login credential.
func (s *Session) CanSign(now time.Time) bool {
	return s != nil && !s.IsExpired(now) && !s.Ephemeral.Destroyed()
}

// Erase destroys all in-memory secret material held by the session.
func (s *Session) Erase() {
	if s == nil {
		return
	}
	s.Ephemeral.Destroy()
	s.Ephemeral = nil
	s.Nonce = ""
}

// PersistedSession is the durable subset of a session: identity and admin
// flag, never key material.
type PersistedSession struct {
	SessionID domain.SessionID
	Identity  Identity
	IsAdmin   bool
	Device    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
