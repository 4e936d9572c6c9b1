// Package registry owns the credential lifecycle: registration, admin status
// changes, public verification and the ledger-driven updates applied by
// reconciliation.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zkbadge/internal/admin/capability"
	"zkbadge/internal/audit"
	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/ledger"
	"zkbadge/internal/membership/models"
	credstore "zkbadge/internal/membership/store/credential"
	"zkbadge/internal/platform/metrics"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/email"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

// Store persists credentials with per-holder uniqueness.
type Store interface {
	Create(ctx context.Context, c models.Credential) error
	Delete(ctx context.Context, id domain.BadgeID) error
	FindByID(ctx context.Context, id domain.BadgeID) (*models.Credential, error)
	FindActiveByHolder(ctx context.Context, holder domain.Address) (*models.Credential, error)
	FindLatestByHolder(ctx context.Context, holder domain.Address) (*models.Credential, error)
	Update(ctx context.Context, id domain.BadgeID, fn func(*models.Credential) error) (*models.Credential, error)
	List(ctx context.Context) ([]models.Credential, error)
	ListUnconfirmed(ctx context.Context) ([]models.Credential, error)
}

// DomainChecker answers whether an email may register.
type DomainChecker interface {
	IsAllowed(ctx context.Context, email string) bool
}

type CapabilityChecker interface {
	Check(tok *capability.Token, now time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, e audit.Event) error
}

// Config names the on-ledger registry the member signs for.
type Config struct {
	RegistryRef  string
	Organization string
}

type Registry struct {
	cfg     Config
	store   Store
	domains DomainChecker
	ledger  ledger.Client
	caps    CapabilityChecker
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(r *Registry) { r.auditor = p }
}

func New(cfg Config, store Store, domains DomainChecker, client ledger.Client, caps CapabilityChecker, opts ...Option) *Registry {
	r := &Registry{
		cfg:     cfg,
		store:   store,
		domains: domains,
		ledger:  client,
		caps:    caps,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a Pending credential for the session's address and
// submits the signed registration to the ledger. The local record is kept
// when the ledger cannot be reached; reconciliation settles it later.
func (r *Registry) Register(ctx context.Context, sess *authModel.Session, profile models.Profile) (*models.Credential, error) {
	now := requestcontext.Now(ctx)
	if sess == nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login required")
	}

	// The registering email is always the verified login email.
	profile.Email = sess.Identity.Email
	profile = profile.Normalized()
	if err := profile.Validate(); err != nil {
		r.metrics.IncRegistration("invalid")
		return nil, err
	}
	if !r.domains.IsAllowed(ctx, profile.Email) {
		r.metrics.IncRegistration("domain_not_allowed")
		return nil, dErrors.Newf(dErrors.CodeDomainNotAllowed, "email domain %s is not whitelisted", email.Domain(profile.Email))
	}
	if !sess.CanSign(now) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login credential expired, please log in again")
	}

	cred := models.Credential{
		ID:            domain.NewBadgeID(),
		HolderAddress: sess.Identity.Address,
		Email:         profile.Email,
		Name:          profile.Name,
		Program:       profile.Program,
		StudentNumber: profile.StudentNumber,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.Create(ctx, cred); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			r.metrics.IncRegistration("already_registered")
			return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "address already holds a credential")
		case errors.Is(err, credstore.ErrHolderRevoked):
			r.metrics.IncRegistration("revoked")
			return nil, dErrors.New(dErrors.CodeCredentialFinal, "address credential was revoked")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save credential")
	}

	submitted, err := r.submit(ctx, sess, &cred)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "member registered",
		"badge_id", submitted.ID.String(),
		"address", submitted.HolderAddress.String(),
		"tx_digest", submitted.TxDigest,
	)
	r.emit(ctx, audit.Event{
		Type:    audit.EventMemberRegistered,
		Actor:   submitted.HolderAddress.String(),
		Subject: submitted.ID.String(),
		Outcome: string(submitted.Status),
		Attrs:   map[string]string{"tx_digest": submitted.TxDigest},
	})
	return submitted, nil
}

// Resubmit retries the ledger submission of the holder's own credential when
// an earlier attempt never reached the ledger.
func (r *Registry) Resubmit(ctx context.Context, sess *authModel.Session) (*models.Credential, error) {
	now := requestcontext.Now(ctx)
	if sess == nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login required")
	}
	cred, err := r.store.FindActiveByHolder(ctx, sess.Identity.Address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeCredentialNotFound, "no credential to resubmit")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if cred.Confirmed || cred.TxDigest != "" {
		return nil, dErrors.New(dErrors.CodeConflict, "registration already reached the ledger")
	}
	if !sess.CanSign(now) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login credential expired, please log in again")
	}
	return r.submit(ctx, sess, cred)
}

// submit sends the member-signed intent. Retryable failures leave the
// optimistic record in place; terminal ones roll it back.
func (r *Registry) submit(ctx context.Context, sess *authModel.Session, cred *models.Credential) (*models.Credential, error) {
	intent := ledger.RegisterMember{
		Sender:       sess.Identity.Address,
		EmailDomain:  email.Domain(cred.Email),
		Organization: r.cfg.Organization,
		MaxEpoch:     sess.MaxEpoch,
	}
	intent.Sign(r.cfg.RegistryRef, sess.Ephemeral)

	receipt, err := r.ledger.RegisterMember(ctx, intent)
	if err != nil {
		if ledger.IsRetryable(err) {
			r.metrics.IncRegistration("pending_ledger_unavailable")
			r.logger.WarnContext(ctx, "ledger unavailable, keeping optimistic registration",
				"badge_id", cred.ID.String(),
				"error", err,
			)
			return cred, nil
		}
		r.metrics.IncRegistration("ledger_rejected")
		if delErr := r.store.Delete(ctx, cred.ID); delErr != nil && !errors.Is(delErr, sentinel.ErrNotFound) {
			r.logger.ErrorContext(ctx, "failed to roll back registration", "badge_id", cred.ID.String(), "error", delErr)
		}
		return nil, ledger.ToDomain(err, "ledger refused registration")
	}

	updated, err := r.store.Update(ctx, cred.ID, func(c *models.Credential) error {
		c.TxDigest = receipt.Digest
		c.UpdatedAt = requestcontext.Now(ctx)
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ledger digest")
	}
	r.metrics.IncRegistration("submitted")
	return updated, nil
}

// SetStatus applies an admin status change under a capability.
func (r *Registry) SetStatus(ctx context.Context, tok *capability.Token, id domain.BadgeID, next models.Status) (*models.Credential, error) {
	now := requestcontext.Now(ctx)
	if err := r.caps.Check(tok, now); err != nil {
		return nil, err
	}
	if !next.IsValid() || next == models.StatusUnconfirmed || next == models.StatusPending {
		return nil, dErrors.Newf(dErrors.CodeValidation, "status %q cannot be set by an administrator", next)
	}

	var previous models.Status
	updated, err := r.store.Update(ctx, id, func(c *models.Credential) error {
		if err := c.CanTransitionTo(next); err != nil {
			return err
		}
		previous = c.Status
		c.ApplyStatus(next, now)
		return nil
	})
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

	r.metrics.IncStatusChange(string(next))
	r.logger.InfoContext(ctx, "credential status changed",
		"badge_id", id.String(),
		"from", string(previous),
		"to", string(next),
		"actor", tok.Actor(),
	)
	r.emit(ctx, audit.Event{
		Type:    audit.EventMemberStatusChanged,
		Actor:   tok.Actor(),
		Subject: id.String(),
		Outcome: string(next),
		Attrs:   map[string]string{"from": string(previous)},
	})
	return updated, nil
}

// Verify answers a public badge lookup. Negative answers carry a reason and
// are not errors.
func (r *Registry) Verify(ctx context.Context, rawID string, claimed string) (models.VerificationResult, error) {
	id, err := domain.ParseBadgeID(rawID)
	if err != nil {
		return models.VerificationResult{Reason: models.ReasonNotFound}, nil
	}
	cred, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.VerificationResult{Reason: models.ReasonNotFound}, nil
		}
		return models.VerificationResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return Evaluate(cred, claimed), nil
}

// Evaluate is the pure verification rule.
func Evaluate(cred *models.Credential, claimed string) models.VerificationResult {
	switch {
	case cred == nil:
		return models.VerificationResult{Reason: models.ReasonNotFound}
	case claimed == "" || !cred.HolderAddress.EqualFold(claimed):
		return models.VerificationResult{Reason: models.ReasonAddressMismatch}
	case cred.Status == models.StatusRevoked:
		return models.VerificationResult{Reason: models.ReasonRevoked}
	case cred.Status != models.StatusVerified:
		return models.VerificationResult{Reason: models.ReasonNotVerified}
	}
	return models.VerificationResult{Valid: true, Reason: models.ReasonValid, Credential: cred}
}

func (r *Registry) Get(ctx context.Context, id domain.BadgeID) (*models.Credential, error) {
	cred, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return cred, nil
}

// ForHolder returns the holder's non-revoked credential, or nil.
func (r *Registry) ForHolder(ctx context.Context, holder domain.Address) (*models.Credential, error) {
	cred, err := r.store.FindActiveByHolder(ctx, holder)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return cred, nil
}

// LatestForHolder returns the holder's newest credential including a revoked
// one, or nil.
func (r *Registry) LatestForHolder(ctx context.Context, holder domain.Address) (*models.Credential, error) {
	cred, err := r.store.FindLatestByHolder(ctx, holder)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return cred, nil
}

func (r *Registry) List(ctx context.Context) ([]models.Credential, error) {
	out, err := r.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	if out == nil {
		out = []models.Credential{}
	}
	return out, nil
}

func (r *Registry) ListUnconfirmed(ctx context.Context) ([]models.Credential, error) {
	out, err := r.store.ListUnconfirmed(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list unconfirmed credentials")
	}
	return out, nil
}

func (r *Registry) emit(ctx context.Context, ev audit.Event) {
	if r.auditor == nil {
		return
	}
	_ = r.auditor.Emit(ctx, ev)
}
