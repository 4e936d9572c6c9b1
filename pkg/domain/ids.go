// Package domain holds the typed identifiers shared across packages.
//
// Typed IDs keep a badge ID from being passed where a domain ID is expected.
// Parse functions are the trust boundary: every ID arriving from a request goes
// through them.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "zkbadge/pkg/domain-errors"
)

type (
	BadgeID   uuid.UUID
	DomainID  uuid.UUID
	SessionID uuid.UUID
)

func NewBadgeID() BadgeID     { return BadgeID(uuid.New()) }
func NewDomainID() DomainID   { return DomainID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id BadgeID) String() string   { return uuid.UUID(id).String() }
func (id DomainID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id BadgeID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id DomainID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id BadgeID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id DomainID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *BadgeID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *DomainID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func ParseBadgeID(s string) (BadgeID, error) {
	u, err := parseUUID(s, "badge ID")
	return BadgeID(u), err
}

func ParseDomainID(s string) (DomainID, error) {
	u, err := parseUUID(s, "domain ID")
	return DomainID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session ID")
	return SessionID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s required", label)
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s", label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s", label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s", label)
	}
	return u, nil
}

// Address is a ledger account address: "0x" followed by 64 lower-case hex
// characters.
type Address string

const addressHexLen = 64

func (a Address) String() string { return string(a) }

func (a Address) IsZero() bool { return a == "" }

// EqualFold compares addresses case-insensitively, the way public lookups
// receive them.
func (a Address) EqualFold(other string) bool {
	return strings.EqualFold(string(a), strings.TrimSpace(other))
}

// ParseAddress validates and normalises an address to lower case.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") || len(s) != 2+addressHexLen {
		return "", dErrors.New(dErrors.CodeValidation, "invalid address")
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid address")
	}
	return Address(s), nil
}
