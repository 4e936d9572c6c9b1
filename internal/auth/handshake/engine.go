// Package handshake runs the zkLogin handshake: it issues an ephemeral key and
// nonce, sends the user to the identity provider and turns the returned ID
// token into an address-bound identity.
package handshake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"zkbadge/internal/audit"
	"zkbadge/internal/auth/models"
	"zkbadge/internal/auth/zklogin"
	"zkbadge/internal/oidc"
	"zkbadge/internal/platform/metrics"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/email"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

// IdentityProvider builds authorization URLs and verifies ID tokens.
type IdentityProvider interface {
	AuthURL(nonce string) string
	Verify(ctx context.Context, rawToken string) (*oidc.Claims, error)
}

// PendingStore holds handshake material between the two phases.
type PendingStore interface {
	Put(ctx context.Context, clientKey string, h *models.PendingHandshake) error
	Take(ctx context.Context, clientKey string) (*models.PendingHandshake, error)
	Delete(ctx context.Context, clientKey string) error
}

// AuditPublisher records handshake outcomes.
type AuditPublisher interface {
	Emit(ctx context.Context, e audit.Event) error
}

// Engine drives handshakes for any number of clients. Each client has at most
// one pending handshake at a time.
type Engine struct {
	clientID  string
	salt      []byte
	ttl       time.Duration
	keyTTL    time.Duration
	providers map[models.Provider]IdentityProvider
	pending   PendingStore
	random    io.Reader
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   AuditPublisher
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(e *Engine) { e.auditor = p }
}

// WithRandom overrides the entropy source for keys and nonce randomness.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.random = r }
}

// WithProvider registers an identity provider.
func WithProvider(name models.Provider, p IdentityProvider) Option {
	return func(e *Engine) { e.providers[name] = p }
}

// Config carries the deployment parameters of the engine. TTL bounds how
// long a started handshake may be completed; KeyLifetime bounds how long the
// resulting ephemeral key may sign and is committed into the nonce.
type Config struct {
	ClientID    string
	Salt        []byte
	TTL         time.Duration
	KeyLifetime time.Duration
}

func New(cfg Config, pending PendingStore, opts ...Option) *Engine {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	keyTTL := cfg.KeyLifetime
	if keyTTL <= 0 {
		keyTTL = 24 * time.Hour
	}
	e := &Engine{
		clientID:  cfg.ClientID,
		salt:      append([]byte(nil), cfg.Salt...),
		ttl:       ttl,
		keyTTL:    keyTTL,
		providers: make(map[models.Provider]IdentityProvider),
		pending:   pending,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BeginHandshake generates fresh handshake material for clientKey, replacing
// any earlier pending attempt, and returns where to send the user.
func (e *Engine) BeginHandshake(ctx context.Context, clientKey string, provider models.Provider) (*models.RedirectInstruction, error) {
	if e.clientID == "" {
		e.metrics.IncHandshake("begin", "misconfigured")
		return nil, dErrors.New(dErrors.CodeMisconfigured, "login is not configured")
	}
	if clientKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "client key required")
	}
	idp, ok := e.providers[provider]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported provider %q", provider)
	}

	key, err := zklogin.GenerateEphemeralKey(e.random)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate ephemeral key")
	}
	defer key.Destroy()
	randomness, err := zklogin.NewRandomness(e.random)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce randomness")
	}

	now := requestcontext.Now(ctx)
	expiresAt := now.Add(e.ttl)
	maxEpoch := uint64(now.Add(e.keyTTL).Unix())
	nonce := zklogin.ComputeNonce(key.PublicKey(), maxEpoch, randomness)

	material := &models.PendingHandshake{
		Provider:      provider,
		Nonce:         nonce,
		Randomness:    randomness,
		MaxEpoch:      maxEpoch,
		EphemeralSeed: key.Seed(),
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
	}
	defer material.Wipe()
	if err := e.pending.Put(ctx, clientKey, material); err != nil {
		e.metrics.IncHandshake("begin", "store_error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store handshake material")
	}

	e.metrics.IncHandshake("begin", "ok")
	e.logger.InfoContext(ctx, "handshake started",
		"provider", string(provider),
		"request_id", requestcontext.RequestID(ctx),
		"expires_at", expiresAt,
	)
	e.emit(ctx, audit.Event{Type: audit.EventHandshakeStarted, Outcome: "ok", Attrs: map[string]string{"provider": string(provider)}})

	return &models.RedirectInstruction{
		Provider:  provider,
		URL:       idp.AuthURL(nonce),
		ExpiresAt: expiresAt,
	}, nil
}

// CompleteHandshake consumes the pending material for clientKey and verifies
// rawToken against it. The material is gone afterwards whatever the outcome.
func (e *Engine) CompleteHandshake(ctx context.Context, clientKey, rawToken string) (*models.HandshakeResult, error) {
	result, err := e.complete(ctx, clientKey, rawToken)
	if err != nil {
		code := dErrors.CodeOf(err)
		e.metrics.IncHandshake("complete", string(code))
		e.logger.WarnContext(ctx, "handshake failed",
			"reason", string(code),
			"request_id", requestcontext.RequestID(ctx),
		)
		e.emit(ctx, audit.Event{Type: audit.EventHandshakeFailed, Outcome: "failed", Reason: string(code)})
		return nil, err
	}

	e.metrics.IncHandshake("complete", "ok")
	e.logger.InfoContext(ctx, "handshake completed",
		"address", result.Identity.Address.String(),
		"email_domain", email.Domain(result.Identity.Email),
		"request_id", requestcontext.RequestID(ctx),
	)
	e.emit(ctx, audit.Event{
		Type:    audit.EventHandshakeCompleted,
		Actor:   result.Identity.Address.String(),
		Subject: result.Identity.Address.String(),
		Outcome: "ok",
	})
	return result, nil
}

func (e *Engine) complete(ctx context.Context, clientKey, rawToken string) (*models.HandshakeResult, error) {
	if clientKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "client key required")
	}
	material, err := e.pending.Take(ctx, clientKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeHandshakeExpired, "no login in progress or it has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load handshake material")
	}
	defer material.Wipe()

	if rawToken == "" {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "identity token missing")
	}
	idp, ok := e.providers[material.Provider]
	if !ok {
		return nil, dErrors.New(dErrors.CodeMisconfigured, "identity provider no longer configured")
	}

	claims, err := idp.Verify(ctx, rawToken)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTokenExpired) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "identity token rejected")
	}
	if claims.Nonce == "" || !zklogin.NonceEqual(claims.Nonce, material.Nonce) {
		return nil, dErrors.New(dErrors.CodeNonceMismatch, "identity token was not issued for this login")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "identity token has no subject")
	}
	if claims.Email == "" || !claims.EmailVerified || email.Domain(claims.Email) == "" {
		return nil, dErrors.New(dErrors.CodeEmailMissing, "identity token has no verified email")
	}

	key, err := zklogin.EphemeralKeyFromSeed(material.EphemeralSeed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "handshake material corrupted")
	}
	if !zklogin.NonceEqual(zklogin.ComputeNonce(key.PublicKey(), material.MaxEpoch, material.Randomness), material.Nonce) {
		key.Destroy()
		return nil, dErrors.New(dErrors.CodeInternal, "handshake material corrupted")
	}

	address, err := zklogin.DeriveAddress(claims.Issuer, claims.Subject, e.salt)
	if err != nil {
		key.Destroy()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive address")
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = email.DisplayName(claims.Email)
	}
	return &models.HandshakeResult{
		Identity: models.Identity{
			SubjectID: claims.Subject,
			Issuer:    claims.Issuer,
			Email:     claims.Email,
			Name:      name,
			Address:   address,
		},
		Ephemeral: key,
		Nonce:     material.Nonce,
		MaxEpoch:  material.MaxEpoch,
	}, nil
}

// Abandon discards any pending material for clientKey.
func (e *Engine) Abandon(ctx context.Context, clientKey string) error {
	if err := e.pending.Delete(ctx, clientKey); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to discard handshake material")
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, ev audit.Event) {
	if e.auditor == nil {
		return
	}
	_ = e.auditor.Emit(ctx, ev)
}
