// Package authority decides which email domains may register and owns every
// change to the whitelist.
package authority

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zkbadge/internal/admin/capability"
	"zkbadge/internal/membership/models"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/email"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

// Store persists whitelisted domain patterns.
type Store interface {
	Insert(ctx context.Context, d models.WhitelistedDomain) error
	Delete(ctx context.Context, id domain.DomainID) error
	FindByID(ctx context.Context, id domain.DomainID) (*models.WhitelistedDomain, error)
	FindByPattern(ctx context.Context, pattern string) (*models.WhitelistedDomain, error)
	List(ctx context.Context) ([]models.WhitelistedDomain, error)
}

// CapabilityChecker validates admin tokens.
type CapabilityChecker interface {
	Check(tok *capability.Token, now time.Time) error
}

type Authority struct {
	store  Store
	caps   CapabilityChecker
	logger *slog.Logger
}

type Option func(*Authority)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) { a.logger = logger }
}

func New(store Store, caps CapabilityChecker, opts ...Option) *Authority {
	a := &Authority{store: store, caps: caps, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsAllowed reports whether the email's domain matches a whitelisted pattern.
// It never fails: an empty whitelist, an unusable email or a store error all
// answer false.
func (a *Authority) IsAllowed(ctx context.Context, emailAddr string) bool {
	emailDomain := email.Domain(emailAddr)
	if emailDomain == "" {
		return false
	}
	patterns, err := a.store.List(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "whitelist unavailable, denying", "error", err)
		return false
	}
	for _, p := range patterns {
		if p.Matches(emailDomain) {
			return true
		}
	}
	return false
}

func (a *Authority) List(ctx context.Context) ([]models.WhitelistedDomain, error) {
	out, err := a.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	if out == nil {
		out = []models.WhitelistedDomain{}
	}
	return out, nil
}

func (a *Authority) Get(ctx context.Context, id domain.DomainID) (*models.WhitelistedDomain, error) {
	d, err := a.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "domain not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load domain")
	}
	return d, nil
}

// PrepareAdd validates a new pattern against format and duplicates without
// changing state, and returns its canonical form.
func (a *Authority) PrepareAdd(ctx context.Context, raw string) (string, error) {
	pattern, err := models.NormalizePattern(raw)
	if err != nil {
		return "", err
	}
	_, err = a.store.FindByPattern(ctx, pattern)
	switch {
	case err == nil:
		return "", dErrors.Newf(dErrors.CodeDuplicateDomain, "domain %s is already whitelisted", pattern)
	case !errors.Is(err, sentinel.ErrNotFound):
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check domain")
	}
	return pattern, nil
}

// Add whitelists a pattern. Callers hold an admin capability; the executor
// calls it only after the ledger confirmed the same change.
func (a *Authority) Add(ctx context.Context, tok *capability.Token, raw string) (*models.WhitelistedDomain, error) {
	now := requestcontext.Now(ctx)
	if err := a.caps.Check(tok, now); err != nil {
		return nil, err
	}
	pattern, err := models.NormalizePattern(raw)
	if err != nil {
		return nil, err
	}
	d := models.WhitelistedDomain{ID: domain.NewDomainID(), Pattern: pattern, CreatedAt: now}
	if err := a.store.Insert(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeDuplicateDomain, "domain %s is already whitelisted", pattern)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save domain")
	}
	a.logger.InfoContext(ctx, "domain whitelisted", "domain_id", d.ID.String(), "pattern", pattern, "actor", tok.Actor())
	return &d, nil
}

// Remove drops a pattern by id under an admin capability.
func (a *Authority) Remove(ctx context.Context, tok *capability.Token, id domain.DomainID) error {
	if err := a.caps.Check(tok, requestcontext.Now(ctx)); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "domain not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove domain")
	}
	a.logger.InfoContext(ctx, "domain removed", "domain_id", id.String(), "actor", tok.Actor())
	return nil
}

// Seed installs patterns into an empty whitelist. It is a no-op when any
// pattern already exists.
func (a *Authority) Seed(ctx context.Context, patterns []string) error {
	existing, err := a.store.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	if len(existing) > 0 {
		return nil
	}
	now := requestcontext.Now(ctx)
	for _, raw := range patterns {
		pattern, err := models.NormalizePattern(raw)
		if err != nil {
			return err
		}
		err = a.store.Insert(ctx, models.WhitelistedDomain{ID: domain.NewDomainID(), Pattern: pattern, CreatedAt: now})
		if err != nil && !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed domain")
		}
	}
	a.logger.InfoContext(ctx, "whitelist seeded", "count", len(patterns))
	return nil
}
