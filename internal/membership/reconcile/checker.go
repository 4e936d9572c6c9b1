package reconcile

import (
	"context"
	"log/slog"

	"zkbadge/internal/ledger"
	"zkbadge/internal/membership/models"
	"zkbadge/pkg/domain"
)

// BadgeChecker answers public verification requests. It reconciles the
// credential on read and cross-checks confirmed badges with the ledger.
type BadgeChecker struct {
	registry   Registry
	reconciler *Reconciler
	ledger     ledger.Client
	logger     *slog.Logger
}

func NewBadgeChecker(registry Registry, reconciler *Reconciler, client ledger.Client, logger *slog.Logger) *BadgeChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgeChecker{registry: registry, reconciler: reconciler, ledger: client, logger: logger}
}

// Verify never fails because the ledger is down: it degrades to the local
// answer with LedgerChecked false.
func (c *BadgeChecker) Verify(ctx context.Context, rawID, claimed string) (models.VerificationResult, error) {
	if id, err := domain.ParseBadgeID(rawID); err == nil {
		if cred, err := c.registry.Get(ctx, id); err == nil {
			if _, err := c.reconciler.ReconcileOne(ctx, *cred); err != nil {
				c.logger.WarnContext(ctx, "reconcile on read failed", "badge_id", rawID, "error", err)
			}
		}
	}

	res, err := c.registry.Verify(ctx, rawID, claimed)
	if err != nil || !res.Valid {
		return res, err
	}
	cred := res.Credential
	if cred == nil || !cred.Confirmed || cred.LedgerBadgeID == "" {
		return res, nil
	}

	onLedger, err := c.ledger.VerifyBadge(ctx, cred.LedgerBadgeID, domain.Address(claimed))
	if err != nil {
		c.logger.WarnContext(ctx, "ledger badge check unavailable", "badge_id", rawID, "error", err)
		return res, nil
	}
	res.LedgerChecked = true
	if !onLedger {
		return models.VerificationResult{Reason: models.ReasonLedgerMismatch, LedgerChecked: true}, nil
	}
	return res, nil
}
