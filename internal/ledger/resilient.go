package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zkbadge/internal/platform/metrics"
	"zkbadge/pkg/domain"
	"zkbadge/pkg/platform/circuit"
)

var tracer = otel.Tracer("zkbadge/ledger")

// Resilient decorates a Client with a per-call deadline, a circuit breaker,
// metrics and tracing. It never retries; retry policy belongs to callers.
type Resilient struct {
	inner   Client
	timeout time.Duration
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type ResilientOption func(*Resilient)

func WithTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) ResilientOption {
	return func(r *Resilient) { r.breaker = b }
}

func WithMetrics(m *metrics.Metrics) ResilientOption {
	return func(r *Resilient) { r.metrics = m }
}

func WithLogger(logger *slog.Logger) ResilientOption {
	return func(r *Resilient) { r.logger = logger }
}

func WithTracer(t trace.Tracer) ResilientOption {
	return func(r *Resilient) { r.tracer = t }
}

func NewResilient(inner Client, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		inner:   inner,
		timeout: 10 * time.Second,
		breaker: circuit.New("ledger"),
		logger:  slog.Default(),
		tracer:  tracer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// call runs fn under the breaker and deadline. Only retryable failures count
// against the breaker; a rejected transaction means the ledger is healthy.
func call[T any](ctx context.Context, r *Resilient, op string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, span := r.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
	defer span.End()

	if !r.breaker.Allow() {
		r.metrics.ObserveLedgerCall(op, "circuit_open", 0)
		span.SetStatus(codes.Error, "circuit open")
		return zero, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := fn(callCtx)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = NewError(CategoryTimeout, op, "ledger call timed out", err)
		}
		category := CategoryOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
		span.SetAttributes(attribute.String("ledger.error_category", string(category)))
		r.metrics.ObserveLedgerCall(op, string(category), elapsed)

		if IsRetryable(err) {
			_, change := r.breaker.RecordFailure()
			if change.Opened {
				r.metrics.SetBreakerOpen(r.breaker.Name(), true)
				r.logger.WarnContext(ctx, "ledger circuit opened", "op", op, "error", err)
			}
		} else {
			r.recordSuccess(ctx)
		}
		return zero, err
	}

	r.metrics.ObserveLedgerCall(op, "ok", elapsed)
	r.recordSuccess(ctx)
	return out, nil
}

func (r *Resilient) recordSuccess(ctx context.Context) {
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.metrics.SetBreakerOpen(r.breaker.Name(), false)
		r.logger.InfoContext(ctx, "ledger circuit closed")
	}
}

func (r *Resilient) RegisterMember(ctx context.Context, req RegisterMember) (*Receipt, error) {
	return call(ctx, r, "register_member",
		[]attribute.KeyValue{attribute.String("ledger.sender", req.Sender.String())},
		func(ctx context.Context) (*Receipt, error) { return r.inner.RegisterMember(ctx, req) })
}

func (r *Resilient) VerifyBadge(ctx context.Context, badgeID string, claimed domain.Address) (bool, error) {
	return call(ctx, r, "verify_badge",
		[]attribute.KeyValue{attribute.String("ledger.badge_id", badgeID)},
		func(ctx context.Context) (bool, error) { return r.inner.VerifyBadge(ctx, badgeID, claimed) })
}

func (r *Resilient) IsDomainAllowed(ctx context.Context, emailDomain string) (bool, error) {
	return call(ctx, r, "is_domain_allowed",
		[]attribute.KeyValue{attribute.String("ledger.domain", emailDomain)},
		func(ctx context.Context) (bool, error) { return r.inner.IsDomainAllowed(ctx, emailDomain) })
}

func (r *Resilient) AddAllowedDomain(ctx context.Context, adminCap AdminCap, pattern string) (*Receipt, error) {
	return call(ctx, r, "add_allowed_domain",
		[]attribute.KeyValue{attribute.String("ledger.domain", pattern)},
		func(ctx context.Context) (*Receipt, error) { return r.inner.AddAllowedDomain(ctx, adminCap, pattern) })
}

func (r *Resilient) RemoveAllowedDomain(ctx context.Context, adminCap AdminCap, pattern string) (*Receipt, error) {
	return call(ctx, r, "remove_allowed_domain",
		[]attribute.KeyValue{attribute.String("ledger.domain", pattern)},
		func(ctx context.Context) (*Receipt, error) {
			return r.inner.RemoveAllowedDomain(ctx, adminCap, pattern)
		})
}

func (r *Resilient) RevokeMembership(ctx context.Context, adminCap AdminCap, member domain.Address) (*Receipt, error) {
	return call(ctx, r, "revoke_membership",
		[]attribute.KeyValue{attribute.String("ledger.member", member.String())},
		func(ctx context.Context) (*Receipt, error) { return r.inner.RevokeMembership(ctx, adminCap, member) })
}

func (r *Resilient) TransactionEffects(ctx context.Context, digest string) (*Effects, error) {
	return call(ctx, r, "transaction_effects",
		[]attribute.KeyValue{attribute.String("ledger.digest", digest)},
		func(ctx context.Context) (*Effects, error) { return r.inner.TransactionEffects(ctx, digest) })
}

func (r *Resilient) MemberRecord(ctx context.Context, member domain.Address) (*MemberRecord, error) {
	return call(ctx, r, "member_record",
		[]attribute.KeyValue{attribute.String("ledger.member", member.String())},
		func(ctx context.Context) (*MemberRecord, error) { return r.inner.MemberRecord(ctx, member) })
}

// AwaitEffects polls TransactionEffects until the ledger reports an outcome
// or ctx is done. A ctx deadline is reported as a retryable timeout.
func AwaitEffects(ctx context.Context, c Client, digest string, interval time.Duration) (*Effects, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fx, err := c.TransactionEffects(ctx, digest)
		if err != nil && CategoryOf(err) != CategoryNotFound {
			return nil, err
		}
		if err == nil && fx.Status != TxUnknown {
			return fx, nil
		}
		select {
		case <-ctx.Done():
			return nil, NewError(CategoryTimeout, "await_effects", "transaction not confirmed in time", ctx.Err())
		case <-ticker.C:
		}
	}
}
