// Package session owns the authenticated session of each client: creation
// from a completed handshake, restore from storage and logout.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"zkbadge/internal/audit"
	"zkbadge/internal/auth/device"
	"zkbadge/internal/auth/models"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

// Store persists sealed session tokens.
type Store interface {
	Save(ctx context.Context, clientKey, token string, ttl time.Duration) error
	Load(ctx context.Context, clientKey string) (string, error)
	Delete(ctx context.Context, clientKey string) error
}

// Sealer turns the durable part of a session into tamper-evident text.
type Sealer interface {
	Seal(p *models.PersistedSession) (string, error)
	Open(token string, now time.Time) (*models.PersistedSession, error)
}

// HandshakeDiscarder drops any pending handshake material for a client.
type HandshakeDiscarder interface {
	Delete(ctx context.Context, clientKey string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, e audit.Event) error
}

// Manager holds one active session per client key. Sessions created by Login
// keep their ephemeral key in process memory only; the persisted copy carries
// identity and admin flag.
type Manager struct {
	store   Store
	sealer  Sealer
	pending HandshakeDiscarder
	policy  AdminPolicy
	ttl     time.Duration
	logger  *slog.Logger
	auditor AuditPublisher

	mu   sync.Mutex
	live map[string]*models.Session
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Manager) { m.auditor = p }
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func NewManager(store Store, sealer Sealer, pending HandshakeDiscarder, policy AdminPolicy, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		sealer:  sealer,
		pending: pending,
		policy:  policy,
		ttl:     24 * time.Hour,
		logger:  slog.Default(),
		live:    make(map[string]*models.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login creates the session for clientKey from a completed handshake,
// replacing and erasing any previous one. The session takes ownership of the
// handshake's ephemeral key.
func (m *Manager) Login(ctx context.Context, clientKey string, result *models.HandshakeResult) (*models.Session, error) {
	if clientKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "client key required")
	}
	if result == nil || result.Identity.SubjectID == "" || result.Identity.Email == "" || result.Identity.Address.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "incomplete identity")
	}

	now := requestcontext.Now(ctx)
	expiresAt := now.Add(m.ttl)
	if result.MaxEpoch > 0 {
		// The session cannot outlive the key validity bound committed in the nonce.
		keyBound := time.Unix(int64(result.MaxEpoch), 0)
		if !keyBound.After(now) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "login credential expired")
		}
		if keyBound.Before(expiresAt) {
			expiresAt = keyBound
		}
	}
	sess := &models.Session{
		ID:        domain.NewSessionID(),
		ClientKey: clientKey,
		Identity:  result.Identity,
		IsAdmin:   m.policy.IsAdmin(result.Identity),
		Device:    device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		Ephemeral: result.Ephemeral,
		Nonce:     result.Nonce,
		MaxEpoch:  result.MaxEpoch,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	token, err := m.sealer.Seal(&models.PersistedSession{
		SessionID: sess.ID,
		Identity:  sess.Identity,
		IsAdmin:   sess.IsAdmin,
		Device:    sess.Device,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal session")
	}
	if err := m.store.Save(ctx, clientKey, token, expiresAt.Sub(now)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist session")
	}

	m.mu.Lock()
	if prev, ok := m.live[clientKey]; ok && prev != sess {
		prev.Erase()
	}
	m.live[clientKey] = sess
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session created",
		"session_id", sess.ID.String(),
		"address", sess.Identity.Address.String(),
		"is_admin", sess.IsAdmin,
		"device", sess.Device,
	)
	m.emit(ctx, audit.Event{
		Type:    audit.EventLoggedIn,
		Actor:   sess.Identity.Address.String(),
		Subject: sess.Identity.Address.String(),
		Attrs:   map[string]string{"session_id": sess.ID.String(), "device": sess.Device},
	})
	return sess, nil
}

// Current returns the live session for clientKey, falling back to Restore.
// It returns nil, nil when the client is not logged in.
func (m *Manager) Current(ctx context.Context, clientKey string) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	m.mu.Lock()
	sess, ok := m.live[clientKey]
	if ok && sess.IsExpired(now) {
		sess.Erase()
		delete(m.live, clientKey)
		ok = false
	}
	m.mu.Unlock()
	if ok {
		return sess, nil
	}
	return m.Restore(ctx, clientKey)
}

// Restore rehydrates the persisted session for clientKey. Stored state that
// is missing, expired, tampered or structurally invalid yields nil, nil and is
// removed. Only storage failures are returned as errors.
func (m *Manager) Restore(ctx context.Context, clientKey string) (*models.Session, error) {
	if clientKey == "" {
		return nil, nil
	}
	token, err := m.store.Load(ctx, clientKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	p, err := m.sealer.Open(token, requestcontext.Now(ctx))
	if err != nil {
		m.logger.WarnContext(ctx, "discarding invalid stored session",
			"reason", dErrors.MessageOf(err),
			"request_id", requestcontext.RequestID(ctx),
		)
		if delErr := m.store.Delete(ctx, clientKey); delErr != nil {
			m.logger.ErrorContext(ctx, "failed to delete invalid session", "error", delErr)
		}
		return nil, nil
	}

	return &models.Session{
		ID:        p.SessionID,
		ClientKey: clientKey,
		Identity:  p.Identity,
		IsAdmin:   m.policy.IsAdmin(p.Identity) && p.IsAdmin,
		Device:    p.Device,
		CreatedAt: p.IssuedAt,
		ExpiresAt: p.ExpiresAt,
	}, nil
}

// Logout erases the session and any lingering handshake material for
// clientKey. It is safe to call when nothing is stored.
func (m *Manager) Logout(ctx context.Context, clientKey string) error {
	m.mu.Lock()
	sess, ok := m.live[clientKey]
	if ok {
		sess.Erase()
		delete(m.live, clientKey)
	}
	m.mu.Unlock()

	var errs []error
	if err := m.store.Delete(ctx, clientKey); err != nil {
		errs = append(errs, err)
	}
	if m.pending != nil {
		if err := m.pending.Delete(ctx, clientKey); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to erase session")
	}

	if ok {
		m.emit(ctx, audit.Event{
			Type:    audit.EventLoggedOut,
			Actor:   sess.Identity.Address.String(),
			Subject: sess.Identity.Address.String(),
		})
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, ev audit.Event) {
	if m.auditor == nil {
		return
	}
	_ = m.auditor.Emit(ctx, ev)
}
