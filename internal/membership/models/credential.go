package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
)

// Status is the lifecycle state of a credential.
type Status string

const (
	StatusPending     Status = "pending"
	StatusVerified    Status = "verified"
	StatusRevoked     Status = "revoked"
	StatusUnconfirmed Status = "registration_unconfirmed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRevoked, StatusUnconfirmed:
		return true
	}
	return false
}

// Active reports whether the status occupies the holder's single slot.
func (s Status) Active() bool {
	return s.IsValid() && s != StatusRevoked
}

func (s Status) String() string { return string(s) }

// ParseStatus accepts the canonical lower-case names.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown status %q", raw)
	}
	return s, nil
}

// Profile is the member-supplied part of a registration.
type Profile struct {
	Name          string `json:"name"`
	Program       string `json:"program"`
	StudentNumber string `json:"student_number"`
	Email         string `json:"email"`
}

// Normalized trims every field and lower-cases the email.
func (p Profile) Normalized() Profile {
	return Profile{
		Name:          strings.TrimSpace(p.Name),
		Program:       strings.TrimSpace(p.Program),
		StudentNumber: strings.TrimSpace(p.StudentNumber),
		Email:         strings.ToLower(strings.TrimSpace(p.Email)),
	}
}

// Validate applies the registration form rules to a normalized profile.
func (p Profile) Validate() error {
	switch {
	case utf8.RuneCountInString(p.Name) < 2:
		return dErrors.New(dErrors.CodeValidation, "name must be at least 2 characters")
	case utf8.RuneCountInString(p.Program) < 2:
		return dErrors.New(dErrors.CodeValidation, "program must be at least 2 characters")
	case p.StudentNumber == "":
		return dErrors.New(dErrors.CodeValidation, "student number is required")
	case p.Email == "":
		return dErrors.New(dErrors.CodeEmailMissing, "email is required")
	}
	return nil
}

// Credential is a membership badge.
//
// Invariants:
//   - at most one credential with an active status per holder address
//   - Revoked is terminal
//   - Confirmed implies TxDigest is set
type Credential struct {
	ID            domain.BadgeID `json:"id"`
	HolderAddress domain.Address `json:"holder_address"`
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	Program       string         `json:"program"`
	StudentNumber string         `json:"student_number"`
	Status        Status         `json:"status"`
	// TxDigest is the digest of the ledger transaction that registered the
	// badge, once submitted.
	TxDigest string `json:"tx_digest,omitempty"`
	// LedgerBadgeID is the badge object id reported by the ledger.
	LedgerBadgeID string `json:"ledger_badge_id,omitempty"`
	// Confirmed is true once the ledger has confirmed the registration.
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo checks an admin-driven status change.
func (c *Credential) CanTransitionTo(next Status) error {
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeCredentialFinal, "credential is revoked")
	}
	switch {
	case next == StatusVerified && (c.Status == StatusPending || c.Status == StatusUnconfirmed):
		return nil
	case next == StatusRevoked:
		return nil
	case next == c.Status:
		return dErrors.Newf(dErrors.CodeConflict, "credential is already %s", next)
	}
	return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot move credential from %s to %s", c.Status, next)
}

func (c *Credential) ApplyStatus(next Status, now time.Time) {
	c.Status = next
	c.UpdatedAt = now
}

// ApplyLedgerConfirmation records that the ledger has the registration.
// An unconfirmed record returns to Pending.
func (c *Credential) ApplyLedgerConfirmation(ledgerBadgeID, digest string, now time.Time) {
	if ledgerBadgeID != "" {
		c.LedgerBadgeID = ledgerBadgeID
	}
	if digest != "" {
		c.TxDigest = digest
	}
	c.Confirmed = true
	if c.Status == StatusUnconfirmed {
		c.Status = StatusPending
	}
	c.UpdatedAt = now
}

// IsStale reports whether an optimistic record has waited longer than window
// for ledger confirmation.
func (c *Credential) IsStale(now time.Time, window time.Duration) bool {
	return !c.Confirmed && c.Status == StatusPending && now.Sub(c.CreatedAt) > window
}

// Reason explains a negative verification result.
type Reason string

const (
	ReasonValid           Reason = "valid"
	ReasonNotFound        Reason = "not_found"
	ReasonAddressMismatch Reason = "address_mismatch"
	ReasonNotVerified     Reason = "not_verified"
	ReasonRevoked         Reason = "revoked"
	ReasonLedgerMismatch  Reason = "ledger_mismatch"
)

// VerificationResult is the answer to a public badge lookup.
type VerificationResult struct {
	Valid         bool        `json:"valid"`
	Reason        Reason      `json:"reason"`
	Credential    *Credential `json:"credential,omitempty"`
	LedgerChecked bool        `json:"ledger_checked"`
}
