package registry

import (
	"context"
	"errors"

	"zkbadge/internal/audit"
	"zkbadge/internal/membership/models"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

// The methods below carry ledger-confirmed facts into the cache. Only the
// reconciler and the admin executor call them.

// ConfirmFromLedger marks a credential as present on the ledger.
func (r *Registry) ConfirmFromLedger(ctx context.Context, id domain.BadgeID, ledgerBadgeID, digest string) (*models.Credential, error) {
	return r.sync(ctx, id, "confirmed", func(c *models.Credential) error {
		if c.Status == models.StatusRevoked {
			return dErrors.New(dErrors.CodeCredentialFinal, "credential is revoked")
		}
		c.ApplyLedgerConfirmation(ledgerBadgeID, digest, requestcontext.Now(ctx))
		return nil
	})
}

// ApplyLedgerRevocation records a revocation the ledger has confirmed. It is
// idempotent.
func (r *Registry) ApplyLedgerRevocation(ctx context.Context, id domain.BadgeID) (*models.Credential, error) {
	return r.sync(ctx, id, "revoked", func(c *models.Credential) error {
		if c.Status == models.StatusRevoked {
			return nil
		}
		c.Confirmed = true
		c.ApplyStatus(models.StatusRevoked, requestcontext.Now(ctx))
		return nil
	})
}

// MarkUnconfirmed flags an optimistic registration the ledger never
// confirmed.
func (r *Registry) MarkUnconfirmed(ctx context.Context, id domain.BadgeID, reason string) (*models.Credential, error) {
	cred, err := r.sync(ctx, id, "unconfirmed", func(c *models.Credential) error {
		if c.Confirmed || !c.Status.Active() {
			return dErrors.Newf(dErrors.CodeConflict, "credential is %s", c.Status)
		}
		c.ApplyStatus(models.StatusUnconfirmed, requestcontext.Now(ctx))
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.emit(ctx, audit.Event{
		Type:    audit.EventMarkedUnconfirmed,
		Subject: id.String(),
		Reason:  reason,
	})
	return cred, nil
}

// ForgetDigest clears the digest of a registration whose transaction the
// ledger no longer knows, so the holder can resubmit.
func (r *Registry) ForgetDigest(ctx context.Context, id domain.BadgeID) (*models.Credential, error) {
	return r.sync(ctx, id, "digest_cleared", func(c *models.Credential) error {
		if c.Confirmed {
			return dErrors.New(dErrors.CodeConflict, "credential is confirmed")
		}
		c.TxDigest = ""
		c.UpdatedAt = requestcontext.Now(ctx)
		return nil
	})
}

func (r *Registry) sync(ctx context.Context, id domain.BadgeID, action string, fn func(*models.Credential) error) (*models.Credential, error) {
	cred, err := r.store.Update(ctx, id, fn)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not found")
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update credential")
	}
	r.logger.InfoContext(ctx, "credential synced from ledger",
		"badge_id", id.String(),
		"action", action,
		"status", string(cred.Status),
	)
	return cred, nil
}
