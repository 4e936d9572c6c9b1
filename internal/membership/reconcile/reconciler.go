// Package reconcile keeps the credential cache consistent with the ledger.
// The ledger wins for anything it has confirmed; the cache holds only
// optimistic registrations the ledger has not seen yet.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"zkbadge/internal/audit"
	"zkbadge/internal/ledger"
	"zkbadge/internal/membership/models"
	"zkbadge/internal/platform/metrics"
	"zkbadge/pkg/domain"
	"zkbadge/pkg/requestcontext"
)

// Registry is the subset of the credential registry reconciliation drives.
type Registry interface {
	List(ctx context.Context) ([]models.Credential, error)
	Get(ctx context.Context, id domain.BadgeID) (*models.Credential, error)
	Verify(ctx context.Context, rawID string, claimed string) (models.VerificationResult, error)
	ConfirmFromLedger(ctx context.Context, id domain.BadgeID, ledgerBadgeID, digest string) (*models.Credential, error)
	ApplyLedgerRevocation(ctx context.Context, id domain.BadgeID) (*models.Credential, error)
	MarkUnconfirmed(ctx context.Context, id domain.BadgeID, reason string) (*models.Credential, error)
	ForgetDigest(ctx context.Context, id domain.BadgeID) (*models.Credential, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, e audit.Event) error
}

// Outcome is what one reconciliation step did.
type Outcome string

const (
	OutcomeInSync      Outcome = "in_sync"
	OutcomePending     Outcome = "pending"
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeRevoked     Outcome = "revoked"
	OutcomeUnconfirmed Outcome = "unconfirmed"
	OutcomeOverridden  Outcome = "overridden"
	OutcomeDiverged    Outcome = "diverged"
	OutcomeUnavailable Outcome = "ledger_unavailable"
	OutcomeSkipped     Outcome = "skipped"
)

// Summary counts outcomes of a full pass.
type Summary struct {
	Checked  int             `json:"checked"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Failed   int             `json:"failed"`
}

type Reconciler struct {
	registry    Registry
	ledger      ledger.Client
	staleness   time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     AuditPublisher
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(r *Reconciler) { r.auditor = p }
}

// WithConcurrency bounds parallel ledger lookups in ReconcileAll.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func New(registry Registry, client ledger.Client, staleness time.Duration, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry:    registry,
		ledger:      client,
		staleness:   staleness,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReconcileOne brings one credential in line with the ledger. Ledger
// unavailability is an outcome, not an error: the cache simply stays as is.
func (r *Reconciler) ReconcileOne(ctx context.Context, cred models.Credential) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch {
	case cred.Status == models.StatusRevoked:
		outcome, err = r.checkRevoked(ctx, cred)
	case cred.Confirmed:
		outcome, err = r.checkConfirmed(ctx, cred)
	default:
		outcome, err = r.settleOptimistic(ctx, cred)
	}
	if err != nil {
		r.metrics.IncReconcile("error")
		return "", err
	}
	r.metrics.IncReconcile(string(outcome))
	return outcome, nil
}

// settleOptimistic resolves a registration the ledger has not confirmed.
func (r *Reconciler) settleOptimistic(ctx context.Context, cred models.Credential) (Outcome, error) {
	if cred.TxDigest != "" {
		fx, err := r.ledger.TransactionEffects(ctx, cred.TxDigest)
		switch {
		case err == nil && fx.Status == ledger.TxSuccess:
			if _, err := r.registry.ConfirmFromLedger(ctx, cred.ID, fx.BadgeID, cred.TxDigest); err != nil {
				return "", err
			}
			r.logger.InfoContext(ctx, "registration confirmed", "badge_id", cred.ID.String(), "digest", cred.TxDigest)
			return OutcomeConfirmed, nil
		case err == nil && fx.Status == ledger.TxUnknown:
			return r.expireIfStale(ctx, cred, "transaction not executed")
		case err == nil && fx.Status == ledger.TxFailure:
			// The ledger may still hold the member from an earlier attempt.
			return r.adoptMemberRecord(ctx, cred, "ledger aborted registration: "+fx.Error)
		case ledger.CategoryOf(err) == ledger.CategoryNotFound:
			if _, err := r.registry.ForgetDigest(ctx, cred.ID); err != nil {
				return "", err
			}
			cred.TxDigest = ""
			return r.adoptMemberRecord(ctx, cred, "ledger does not know the transaction")
		default:
			r.logger.WarnContext(ctx, "ledger unavailable during reconciliation", "badge_id", cred.ID.String(), "error", err)
			return OutcomeUnavailable, nil
		}
	}
	return r.adoptMemberRecord(ctx, cred, "registration never reached the ledger")
}

// adoptMemberRecord takes the ledger's record for the holder when one
// exists, and otherwise applies the staleness rule.
func (r *Reconciler) adoptMemberRecord(ctx context.Context, cred models.Credential, reason string) (Outcome, error) {
	rec, err := r.ledger.MemberRecord(ctx, cred.HolderAddress)
	switch {
	case ledger.CategoryOf(err) == ledger.CategoryNotFound:
		if cred.TxDigest != "" && cred.Status != models.StatusUnconfirmed {
			// An aborted transaction will never confirm.
			return r.markUnconfirmed(ctx, cred, reason)
		}
		return r.expireIfStale(ctx, cred, reason)
	case err != nil:
		r.logger.WarnContext(ctx, "ledger unavailable during reconciliation", "badge_id", cred.ID.String(), "error", err)
		return OutcomeUnavailable, nil
	case rec.Revoked:
		if _, err := r.registry.ApplyLedgerRevocation(ctx, cred.ID); err != nil {
			return "", err
		}
		r.override(ctx, cred, "ledger reports membership revoked")
		return OutcomeRevoked, nil
	}
	if _, err := r.registry.ConfirmFromLedger(ctx, cred.ID, rec.BadgeID, rec.Digest); err != nil {
		return "", err
	}
	r.logger.InfoContext(ctx, "registration adopted from ledger record", "badge_id", cred.ID.String(), "digest", rec.Digest)
	return OutcomeConfirmed, nil
}

func (r *Reconciler) expireIfStale(ctx context.Context, cred models.Credential, reason string) (Outcome, error) {
	if !cred.IsStale(requestcontext.Now(ctx), r.staleness) {
		return OutcomePending, nil
	}
	return r.markUnconfirmed(ctx, cred, reason)
}

func (r *Reconciler) markUnconfirmed(ctx context.Context, cred models.Credential, reason string) (Outcome, error) {
	if cred.Status == models.StatusUnconfirmed {
		return OutcomePending, nil
	}
	if _, err := r.registry.MarkUnconfirmed(ctx, cred.ID, reason); err != nil {
		return "", err
	}
	r.logger.WarnContext(ctx, "registration unconfirmed", "badge_id", cred.ID.String(), "reason", reason)
	return OutcomeUnconfirmed, nil
}

// checkConfirmed applies ledger-side changes to a confirmed credential.
func (r *Reconciler) checkConfirmed(ctx context.Context, cred models.Credential) (Outcome, error) {
	rec, err := r.ledger.MemberRecord(ctx, cred.HolderAddress)
	switch {
	case ledger.CategoryOf(err) == ledger.CategoryNotFound:
		r.logger.ErrorContext(ctx, "confirmed credential missing on ledger", "badge_id", cred.ID.String())
		return OutcomeDiverged, nil
	case err != nil:
		r.logger.WarnContext(ctx, "ledger unavailable during reconciliation", "badge_id", cred.ID.String(), "error", err)
		return OutcomeUnavailable, nil
	case rec.Revoked:
		if _, err := r.registry.ApplyLedgerRevocation(ctx, cred.ID); err != nil {
			return "", err
		}
		r.override(ctx, cred, "ledger reports membership revoked")
		return OutcomeRevoked, nil
	case rec.BadgeID != cred.LedgerBadgeID:
		if _, err := r.registry.ConfirmFromLedger(ctx, cred.ID, rec.BadgeID, rec.Digest); err != nil {
			return "", err
		}
		r.override(ctx, cred, "ledger badge id differs from cache")
		return OutcomeOverridden, nil
	}
	return OutcomeInSync, nil
}

// checkRevoked flags a locally revoked credential that is still active on
// the ledger. Revocation needs the admin capability, so the divergence is
// reported for an administrator to revoke again rather than repaired here.
func (r *Reconciler) checkRevoked(ctx context.Context, cred models.Credential) (Outcome, error) {
	if cred.TxDigest == "" && !cred.Confirmed {
		return OutcomeSkipped, nil
	}
	rec, err := r.ledger.MemberRecord(ctx, cred.HolderAddress)
	switch {
	case ledger.CategoryOf(err) == ledger.CategoryNotFound:
		return OutcomeSkipped, nil
	case err != nil:
		r.logger.WarnContext(ctx, "ledger unavailable during reconciliation", "badge_id", cred.ID.String(), "error", err)
		return OutcomeUnavailable, nil
	case rec.Revoked:
		return OutcomeInSync, nil
	}
	r.logger.ErrorContext(ctx, "revoked credential still active on ledger",
		"badge_id", cred.ID.String(),
		"address", cred.HolderAddress.String(),
		"ledger_badge_id", rec.BadgeID,
	)
	if r.auditor != nil {
		_ = r.auditor.Emit(ctx, audit.Event{
			Type:    audit.EventReconcileDiverged,
			Subject: cred.ID.String(),
			Reason:  "ledger membership active for revoked credential",
			Attrs:   map[string]string{"address": cred.HolderAddress.String(), "ledger_badge_id": rec.BadgeID},
		})
	}
	return OutcomeDiverged, nil
}

func (r *Reconciler) override(ctx context.Context, cred models.Credential, reason string) {
	r.logger.InfoContext(ctx, "ledger overrides cached credential", "badge_id", cred.ID.String(), "reason", reason)
	if r.auditor == nil {
		return
	}
	_ = r.auditor.Emit(ctx, audit.Event{
		Type:    audit.EventReconcileOverride,
		Subject: cred.ID.String(),
		Reason:  reason,
	})
}

// ReconcileAll runs one bounded-concurrency pass over every credential.
// Individual failures are counted and logged; the pass continues.
func (r *Reconciler) ReconcileAll(ctx context.Context) (Summary, error) {
	creds, err := r.registry.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	var (
		mu      sync.Mutex
		summary = Summary{Outcomes: make(map[Outcome]int)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, cred := range creds {
		g.Go(func() error {
			outcome, err := r.ReconcileOne(gctx, cred)
			mu.Lock()
			defer mu.Unlock()
			summary.Checked++
			if err != nil {
				summary.Failed++
				r.logger.ErrorContext(gctx, "reconcile failed", "badge_id", cred.ID.String(), "error", err)
				return nil
			}
			summary.Outcomes[outcome]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	r.logger.InfoContext(ctx, "reconciliation pass complete",
		"checked", summary.Checked,
		"failed", summary.Failed,
	)
	return summary, ctx.Err()
}
