package models

import (
	"time"

	"zkbadge/internal/auth/zklogin"
	"zkbadge/pkg/domain"
)

// Provider names an OpenID identity provider.
type Provider string

const ProviderGoogle Provider = "google"

// Identity is the verified result of a completed handshake.
//
// Invariants:
//   - SubjectID and Email are non-empty
//   - Address is a pure function of (Issuer, SubjectID, deployment salt)
type Identity struct {
	SubjectID string         `json:"sub"`
	Issuer    string         `json:"iss"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Address   domain.Address `json:"address"`
}

// RedirectInstruction tells the client where to send the user to log in.
type RedirectInstruction struct {
	Provider  Provider  `json:"provider"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PendingHandshake is the material kept between BeginHandshake and
// CompleteHandshake. It lives only in session-local storage with a TTL and is
// consumed by the first completion attempt, successful or not.
type PendingHandshake struct {
	Provider      Provider  `json:"provider"`
	Nonce         string    `json:"nonce"`
	Randomness    []byte    `json:"randomness"`
	MaxEpoch      uint64    `json:"max_epoch"`
	EphemeralSeed []byte    `json:"ephemeral_seed"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (p *PendingHandshake) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Wipe zeroes the secret material in place.
func (p *PendingHandshake) Wipe() {
	if p == nil {
		return
	}
	for i := range p.EphemeralSeed {
		p.EphemeralSeed[i] = 0
	}
	for i := range p.Randomness {
		p.Randomness[i] = 0
	}
	p.EphemeralSeed = nil
	p.Randomness = nil
	p.Nonce = ""
}

// HandshakeResult is what a successful CompleteHandshake hands to the
// session manager. The ephemeral key is owned by the receiver from then on.
type HandshakeResult struct {
	Identity  Identity
	Ephemeral *zklogin.EphemeralKey
	Nonce     string
	MaxEpoch  uint64
}
