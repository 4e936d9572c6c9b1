// Package capability gates privileged mutations. A Token can only be minted
// from a live administrator session, and the ledger admin capability it
// unlocks is held by one transaction at a time.
package capability

import (
	"context"
	"time"

	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/ledger"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
)

// Token proves its holder acted through an administrator session. The zero
// value and tokens minted by another Keeper are rejected.
type Token struct {
	keeper    *Keeper
	sessionID domain.SessionID
	actor     string
	address   domain.Address
	expiresAt time.Time
}

// Actor names the administrator for audit records.
func (t *Token) Actor() string {
	if t == nil {
		return ""
	}
	return t.actor
}

func (t *Token) Address() domain.Address {
	if t == nil {
		return ""
	}
	return t.address
}

// Keeper mints tokens and owns the ledger admin capability object.
type Keeper struct {
	adminCap ledger.AdminCap
	slot     chan struct{}
}

func NewKeeper(adminCap ledger.AdminCap) *Keeper {
	return &Keeper{adminCap: adminCap, slot: make(chan struct{}, 1)}
}

// Mint issues a token for an administrator session. The token expires with
// the session.
func (k *Keeper) Mint(sess *authModel.Session, now time.Time) (*Token, error) {
	switch {
	case sess == nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login required")
	case sess.IsExpired(now):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
	case !sess.IsAdmin:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "administrator access required")
	}
	return &Token{
		keeper:    k,
		sessionID: sess.ID,
		actor:     sess.Identity.Email,
		address:   sess.Identity.Address,
		expiresAt: sess.ExpiresAt,
	}, nil
}

// Check validates a token without taking the capability.
func (k *Keeper) Check(tok *Token, now time.Time) error {
	if tok == nil || tok.keeper != k {
		return dErrors.New(dErrors.CodeUnauthorized, "missing admin capability")
	}
	if !now.Before(tok.expiresAt) {
		return dErrors.New(dErrors.CodeUnauthorized, "admin capability has expired")
	}
	return nil
}

// Lease is exclusive use of the ledger admin capability.
type Lease struct {
	Cap   ledger.AdminCap
	Actor string

	keeper   *Keeper
	released bool
}

// Release returns the capability. It is safe to call more than once.
func (l *Lease) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	<-l.keeper.slot
}

// Acquire validates tok and blocks until the capability is free or ctx ends.
func (k *Keeper) Acquire(ctx context.Context, tok *Token, now time.Time) (*Lease, error) {
	if err := k.Check(tok, now); err != nil {
		return nil, err
	}
	select {
	case k.slot <- struct{}{}:
		return &Lease{Cap: k.adminCap, Actor: tok.actor, keeper: k}, nil
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "admin capability is busy")
	}
}
