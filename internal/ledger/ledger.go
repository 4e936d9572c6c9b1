// Package ledger is the boundary to the external ledger holding the
// membership registry contract. Implementations are chosen once at startup:
// memledger for development and tests, gateway for a real relay.
package ledger

import (
	"context"
	"crypto/ed25519"

	"zkbadge/pkg/domain"
)

// TxStatus is the execution status of a submitted transaction.
type TxStatus string

const (
	TxSuccess TxStatus = "success"
	TxFailure TxStatus = "failure"
	// TxUnknown means the ledger has no effects for the digest yet.
	TxUnknown TxStatus = "unknown"
)

// Receipt is returned when a transaction has been accepted for execution.
type Receipt struct {
	Digest string `json:"digest"`
}

// Effects describe a transaction once the ledger knows its outcome.
type Effects struct {
	Digest string   `json:"digest"`
	Status TxStatus `json:"status"`
	// BadgeID is the object id from the MemberRegistered event, if any.
	BadgeID string `json:"badge_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MemberRecord is the ledger's confirmed view of one holder.
type MemberRecord struct {
	Address domain.Address `json:"address"`
	BadgeID string         `json:"badge_id"`
	Digest  string         `json:"digest"`
	Revoked bool           `json:"revoked"`
}

// RegisterMember is a member-signed registration intent.
type RegisterMember struct {
	Sender       domain.Address    `json:"sender"`
	EmailDomain  string            `json:"email_domain"`
	Organization string            `json:"organization"`
	PublicKey    ed25519.PublicKey `json:"public_key"`
	MaxEpoch     uint64            `json:"max_epoch"`
	Signature    []byte            `json:"signature"`
}

// AdminCap identifies the held admin capability object.
type AdminCap struct {
	ObjectID string `json:"object_id"`
}

// Client is the ledger capability. Queries are read-only; mutations return a
// receipt whose effects are read with TransactionEffects.
type Client interface {
	RegisterMember(ctx context.Context, req RegisterMember) (*Receipt, error)
	VerifyBadge(ctx context.Context, badgeID string, claimed domain.Address) (bool, error)
	IsDomainAllowed(ctx context.Context, emailDomain string) (bool, error)
	AddAllowedDomain(ctx context.Context, adminCap AdminCap, pattern string) (*Receipt, error)
	RemoveAllowedDomain(ctx context.Context, adminCap AdminCap, pattern string) (*Receipt, error)
	RevokeMembership(ctx context.Context, adminCap AdminCap, member domain.Address) (*Receipt, error)
	TransactionEffects(ctx context.Context, digest string) (*Effects, error)
	MemberRecord(ctx context.Context, member domain.Address) (*MemberRecord, error)
}
