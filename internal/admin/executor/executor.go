// Package executor runs privileged admin commands as single ledger
// transactions. The local mirror changes only after the ledger confirms.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zkbadge/internal/admin/capability"
	"zkbadge/internal/audit"
	"zkbadge/internal/ledger"
	"zkbadge/internal/membership/models"
	"zkbadge/internal/platform/metrics"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/requestcontext"
)

// CapabilityHolder hands out exclusive use of the admin capability.
type CapabilityHolder interface {
	Acquire(ctx context.Context, tok *capability.Token, now time.Time) (*capability.Lease, error)
}

// DomainAuthority is the whitelist side of the local mirror.
type DomainAuthority interface {
	PrepareAdd(ctx context.Context, raw string) (string, error)
	Get(ctx context.Context, id domain.DomainID) (*models.WhitelistedDomain, error)
	Add(ctx context.Context, tok *capability.Token, raw string) (*models.WhitelistedDomain, error)
	Remove(ctx context.Context, tok *capability.Token, id domain.DomainID) error
}

// CredentialRegistry is the credential side of the local mirror.
type CredentialRegistry interface {
	Get(ctx context.Context, id domain.BadgeID) (*models.Credential, error)
	LatestForHolder(ctx context.Context, holder domain.Address) (*models.Credential, error)
	SetStatus(ctx context.Context, tok *capability.Token, id domain.BadgeID, next models.Status) (*models.Credential, error)
	ApplyLedgerRevocation(ctx context.Context, id domain.BadgeID) (*models.Credential, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, e audit.Event) error
}

// RetryPolicy caps retries of retryable ledger failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RetryNotify is called before each retry with the failed attempt number.
type RetryNotify func(command string, attempt int, err error, wait time.Duration)

type Executor struct {
	caps     CapabilityHolder
	ledger   ledger.Client
	domains  DomainAuthority
	registry CredentialRegistry

	retry        RetryPolicy
	pollInterval time.Duration
	awaitTimeout time.Duration
	notify       RetryNotify

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
	tracer  trace.Tracer
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(e *Executor) { e.auditor = p }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) {
		if p.MaxAttempts > 0 {
			e.retry = p
		}
	}
}

// WithConfirmation sets how often and how long to poll for effects.
func WithConfirmation(poll, timeout time.Duration) Option {
	return func(e *Executor) {
		if poll > 0 {
			e.pollInterval = poll
		}
		if timeout > 0 {
			e.awaitTimeout = timeout
		}
	}
}

func WithRetryNotify(fn RetryNotify) Option {
	return func(e *Executor) { e.notify = fn }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

func New(caps CapabilityHolder, client ledger.Client, domains DomainAuthority, registry CredentialRegistry, opts ...Option) *Executor {
	e := &Executor{
		caps:         caps,
		ledger:       client,
		domains:      domains,
		registry:     registry,
		retry:        RetryPolicy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second},
		pollInterval: 250 * time.Millisecond,
		awaitTimeout: 30 * time.Second,
		logger:       slog.Default(),
		tracer:       otel.Tracer("zkbadge/admin"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs cmd while holding the admin capability exclusively.
func (e *Executor) Execute(ctx context.Context, tok *capability.Token, cmd Command) (*Result, error) {
	if cmd == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "command required")
	}
	lease, err := e.caps.Acquire(ctx, tok, requestcontext.Now(ctx))
	if err != nil {
		e.metrics.IncAdminTransaction(cmd.Name(), "unauthorized")
		return nil, err
	}
	defer lease.Release()

	ctx, span := e.tracer.Start(ctx, "admin."+cmd.Name(), trace.WithAttributes(attribute.String("admin.actor", lease.Actor)))
	defer span.End()

	var res *Result
	switch c := cmd.(type) {
	case AddDomain:
		res, err = e.addDomain(ctx, tok, lease, c)
	case RemoveDomain:
		res, err = e.removeDomain(ctx, tok, lease, c)
	case RevokeMembership:
		res, err = e.revoke(ctx, tok, lease, c)
	case VerifyMembership:
		res, err = e.verify(ctx, tok, c)
	default:
		err = dErrors.Newf(dErrors.CodeBadRequest, "unsupported command %T", cmd)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.IncAdminTransaction(cmd.Name(), string(dErrors.CodeOf(err)))
		e.logger.WarnContext(ctx, "admin transaction failed",
			"command", cmd.Name(),
			"actor", lease.Actor,
			"error", err,
		)
		e.emit(ctx, audit.Event{
			Type:    audit.EventAdminTxFailed,
			Actor:   lease.Actor,
			Subject: cmd.Name(),
			Outcome: "failed",
			Reason:  string(dErrors.CodeOf(err)),
		})
		return nil, err
	}

	res.Command = cmd.Name()
	span.SetAttributes(attribute.String("ledger.digest", res.Digest), attribute.Int("ledger.attempts", res.Attempts))
	e.metrics.IncAdminTransaction(cmd.Name(), "success")
	e.logger.InfoContext(ctx, "admin transaction applied",
		"command", cmd.Name(),
		"actor", lease.Actor,
		"digest", res.Digest,
		"attempts", res.Attempts,
	)
	return res, nil
}

func (e *Executor) addDomain(ctx context.Context, tok *capability.Token, lease *capability.Lease, c AddDomain) (*Result, error) {
	pattern, err := e.domains.PrepareAdd(ctx, c.Pattern)
	if err != nil {
		return nil, err
	}
	res, err := e.transact(ctx, "add_allowed_domain",
		func(ctx context.Context) (*ledger.Receipt, error) {
			return e.ledger.AddAllowedDomain(ctx, lease.Cap, pattern)
		},
		func(ctx context.Context) (bool, error) {
			return e.ledger.IsDomainAllowed(ctx, pattern)
		})
	if err != nil {
		return nil, err
	}
	d, err := e.domains.Add(ctx, tok, pattern)
	if err != nil {
		return nil, err
	}
	res.Domain = d
	e.emit(ctx, audit.Event{
		Type:    audit.EventDomainAdded,
		Actor:   lease.Actor,
		Subject: d.Pattern,
		Outcome: "success",
		Attrs:   map[string]string{"domain_id": d.ID.String(), "digest": res.Digest},
	})
	return res, nil
}

func (e *Executor) removeDomain(ctx context.Context, tok *capability.Token, lease *capability.Lease, c RemoveDomain) (*Result, error) {
	d, err := e.domains.Get(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	res, err := e.transact(ctx, "remove_allowed_domain",
		func(ctx context.Context) (*ledger.Receipt, error) {
			return e.ledger.RemoveAllowedDomain(ctx, lease.Cap, d.Pattern)
		},
		func(ctx context.Context) (bool, error) {
			allowed, err := e.ledger.IsDomainAllowed(ctx, d.Pattern)
			return !allowed, err
		})
	if err != nil {
		return nil, err
	}
	if err := e.domains.Remove(ctx, tok, d.ID); err != nil {
		return nil, err
	}
	res.Domain = d
	e.emit(ctx, audit.Event{
		Type:    audit.EventDomainRemoved,
		Actor:   lease.Actor,
		Subject: d.Pattern,
		Outcome: "success",
		Attrs:   map[string]string{"domain_id": d.ID.String(), "digest": res.Digest},
	})
	return res, nil
}

func (e *Executor) revoke(ctx context.Context, tok *capability.Token, lease *capability.Lease, c RevokeMembership) (*Result, error) {
	cred, err := e.registry.LatestForHolder(ctx, c.Address)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, dErrors.New(dErrors.CodeCredentialNotFound, "address holds no credential")
	}
	if err := cred.CanTransitionTo(models.StatusRevoked); err != nil {
		return nil, err
	}

	record, attempts, err := retry(ctx, e, "member_record", func(ctx context.Context) (*ledger.MemberRecord, error) {
		rec, err := e.ledger.MemberRecord(ctx, c.Address)
		if ledger.CategoryOf(err) == ledger.CategoryNotFound {
			return nil, nil
		}
		return rec, err
	})
	if err != nil {
		return nil, ledger.ToDomain(err, "ledger member lookup failed")
	}
	if record == nil && cred.TxDigest != "" {
		record, err = e.settleRegistration(ctx, c.Address, cred.TxDigest)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{Attempts: attempts}
	switch {
	case record == nil:
		// No registration for the holder ever landed on the ledger.
		res.LedgerSkipped = true
		cred, err = e.registry.SetStatus(ctx, tok, cred.ID, models.StatusRevoked)
	case record.Revoked:
		res.LedgerSkipped = true
		cred, err = e.registry.ApplyLedgerRevocation(ctx, cred.ID)
	default:
		var tx *Result
		tx, err = e.transact(ctx, "revoke_membership",
			func(ctx context.Context) (*ledger.Receipt, error) {
				return e.ledger.RevokeMembership(ctx, lease.Cap, c.Address)
			},
			func(ctx context.Context) (bool, error) {
				rec, err := e.ledger.MemberRecord(ctx, c.Address)
				if err != nil {
					return false, err
				}
				return rec.Revoked, nil
			})
		if err != nil {
			return nil, err
		}
		res.Digest = tx.Digest
		res.Attempts += tx.Attempts
		cred, err = e.registry.SetStatus(ctx, tok, cred.ID, models.StatusRevoked)
	}
	if err != nil {
		return nil, err
	}
	res.Credential = cred
	return res, nil
}

// settleRegistration resolves a submitted registration whose member record
// is not visible. It returns nil only when the ledger aborted the
// transaction. Anything the ledger may still execute is a retryable
// LedgerUnavailable; reconciliation forgets digests the ledger never saw.
func (e *Executor) settleRegistration(ctx context.Context, holder domain.Address, digest string) (*ledger.MemberRecord, error) {
	fx, err := e.ledger.TransactionEffects(ctx, digest)
	switch {
	case ledger.CategoryOf(err) == ledger.CategoryNotFound:
		return nil, dErrors.New(dErrors.CodeLedgerUnavailable, "registration transaction not yet known to the ledger")
	case err != nil:
		return nil, ledger.ToDomain(err, "registration transaction lookup failed")
	case fx.Status == ledger.TxFailure:
		return nil, nil
	case fx.Status != ledger.TxSuccess:
		return nil, dErrors.New(dErrors.CodeLedgerUnavailable, "registration transaction still pending on the ledger")
	}
	rec, err := e.ledger.MemberRecord(ctx, holder)
	if err != nil {
		if ledger.CategoryOf(err) == ledger.CategoryNotFound {
			return nil, dErrors.New(dErrors.CodeLedgerUnavailable, "registration executed but member record not readable yet")
		}
		return nil, ledger.ToDomain(err, "ledger member lookup failed")
	}
	return rec, nil
}

func (e *Executor) verify(ctx context.Context, tok *capability.Token, c VerifyMembership) (*Result, error) {
	cred, err := e.registry.SetStatus(ctx, tok, c.BadgeID, models.StatusVerified)
	if err != nil {
		return nil, err
	}
	return &Result{Credential: cred, LedgerSkipped: true}, nil
}

// transact submits with retries, waits for effects and checks the outcome.
// A failed transaction whose desired state already holds on the ledger counts
// as applied, which covers a retry after a lost response.
func (e *Executor) transact(
	ctx context.Context,
	op string,
	submit func(context.Context) (*ledger.Receipt, error),
	applied func(context.Context) (bool, error),
) (*Result, error) {
	receipt, attempts, err := retry(ctx, e, op, submit)
	if err != nil {
		return nil, ledger.ToDomain(err, op+" was not accepted by the ledger")
	}

	awaitCtx, cancel := context.WithTimeout(ctx, e.awaitTimeout)
	defer cancel()
	fx, err := ledger.AwaitEffects(awaitCtx, e.ledger, receipt.Digest, e.pollInterval)
	if err != nil {
		return nil, ledger.ToDomain(err, op+" was not confirmed by the ledger")
	}

	res := &Result{Digest: receipt.Digest, Attempts: attempts}
	if fx.Status == ledger.TxSuccess {
		return res, nil
	}
	if ok, checkErr := applied(ctx); checkErr == nil && ok {
		e.logger.InfoContext(ctx, "ledger already in desired state", "op", op, "digest", receipt.Digest, "abort", fx.Error)
		return res, nil
	}
	return nil, dErrors.Newf(dErrors.CodeLedgerRejected, "%s aborted on the ledger: %s", op, fx.Error)
}

// retry runs fn until it succeeds, fails terminally or the policy gives up.
func retry[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.retry.InitialInterval
	policy.MaxInterval = e.retry.MaxInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.retry.MaxAttempts-1)), ctx)

	attempts := 0
	out, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err != nil && !ledger.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b, func(err error, wait time.Duration) {
		e.logger.WarnContext(ctx, "retrying ledger call", "op", op, "attempt", attempts, "wait", wait, "error", err)
		if e.notify != nil {
			e.notify(op, attempts, err, wait)
		}
	})
	return out, attempts, err
}

func (e *Executor) emit(ctx context.Context, ev audit.Event) {
	if e.auditor == nil {
		return
	}
	_ = e.auditor.Emit(ctx, ev)
}
