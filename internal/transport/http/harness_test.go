package httptransport

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"zkbadge/internal/admin/capability"
	"zkbadge/internal/admin/executor"
	"zkbadge/internal/audit"
	"zkbadge/internal/auth/handshake"
	"zkbadge/internal/auth/models"
	"zkbadge/internal/auth/session"
	"zkbadge/internal/auth/store/pending"
	sessionstore "zkbadge/internal/auth/store/session"
	jwttoken "zkbadge/internal/jwt_token"
	"zkbadge/internal/ledger/memledger"
	"zkbadge/internal/membership/authority"
	"zkbadge/internal/membership/reconcile"
	"zkbadge/internal/membership/registry"
	credstore "zkbadge/internal/membership/store/credential"
	domainstore "zkbadge/internal/membership/store/domain"
	"zkbadge/internal/oidc"
	"zkbadge/internal/platform/metrics"
	"zkbadge/internal/platform/middleware"
	"zkbadge/pkg/requestcontext"
)

const (
	testIssuer   = "https://accounts.example.com"
	testClientID = "client-123"
	adminEmail   = "dean@university.edu"
)

// harness wires the real services over in-memory stores and the in-memory
// ledger behind the router.
type harness struct {
	t        *testing.T
	now      time.Time
	key      *rsa.PrivateKey
	ledger   *memledger.Ledger
	registry *registry.Registry
	auditLog *audit.InMemoryStore
	router   http.Handler
}

var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
	signingKeyErr  error
)

func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	signingKeyOnce.Do(func() {
		signingKey, signingKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, signingKeyErr)
	return signingKey
}

func requestContext(now time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), now)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		now:      time.Now().Truncate(time.Second),
		key:      testSigningKey(t),
		ledger:   memledger.New("0xregistry", "0xcap"),
		auditLog: audit.NewInMemoryStore(),
	}
	clock := func() time.Time { return h.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	auditor := audit.NewPublisher(h.auditLog, logger)

	h.ledger.SeedDomain("@university.edu")
	provider := oidc.NewWithKeySet(oidc.Config{
		ClientID:    testClientID,
		IssuerURL:   testIssuer,
		AuthURL:     testIssuer + "/auth",
		RedirectURI: "http://localhost:8080/auth/callback",
	}, &gooidc.StaticKeySet{PublicKeys: []crypto.PublicKey{h.key.Public()}}, clock)

	pendingStore := pending.NewInMemory()
	engine := handshake.New(handshake.Config{ClientID: testClientID, Salt: []byte("salt"), TTL: 10 * time.Minute}, pendingStore,
		handshake.WithProvider(models.ProviderGoogle, provider),
		handshake.WithLogger(logger),
		handshake.WithAuditPublisher(auditor),
	)
	sessions := session.NewManager(sessionstore.NewInMemorySessionStore(),
		jwttoken.NewJWTService(strings.Repeat("k", 32), "zkbadge", "zkbadge"),
		pendingStore, session.NewAdminPolicy([]string{adminEmail}, nil),
		session.WithLogger(logger),
	)

	keeper := capability.NewKeeper(h.ledger.AdminCap())
	domains := authority.New(domainstore.NewInMemory(), keeper, authority.WithLogger(logger))
	require.NoError(t, domains.Seed(requestContext(h.now), []string{"@university.edu"}))
	h.registry = registry.New(registry.Config{RegistryRef: "0xregistry", Organization: "University"},
		credstore.NewInMemory(), domains, h.ledger, keeper,
		registry.WithLogger(logger), registry.WithAuditPublisher(auditor))
	exec := executor.New(keeper, h.ledger, domains, h.registry,
		executor.WithLogger(logger),
		executor.WithRetryPolicy(executor.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}),
		executor.WithConfirmation(time.Millisecond, 50*time.Millisecond),
	)
	reconciler := reconcile.New(h.registry, h.ledger, 30*time.Minute, reconcile.WithLogger(logger))
	checker := reconcile.NewBadgeChecker(h.registry, reconciler, h.ledger, logger)

	h.router = NewRouter(RouterConfig{
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Clock:          clock,
	}, sessions, logger, m,
		NewAuthHandler(engine, sessions, logger),
		NewMemberHandler(h.registry, checker, domains, logger),
		NewAdminHandler(keeper, exec, h.registry, reconciler, logger),
	)
	return h
}

// idToken signs an ID token the way the provider would.
func (h *harness) idToken(subject, email, nonce string) string {
	h.t.Helper()
	claims := jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            subject,
		"email":          email,
		"email_verified": true,
		"name":           "Test User",
		"nonce":          nonce,
		"iat":            h.now.Unix(),
		"exp":            h.now.Add(time.Hour).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(h.key)
	require.NoError(h.t, err)
	return raw
}

// browser is one client with its own cookie.
type browser struct {
	h       *harness
	cookies []*http.Cookie
}

func (h *harness) browser() *browser {
	return &browser{h: h}
}

func (b *browser) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	b.h.t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(b.h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.h.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.ClientCookie {
			b.cookies = []*http.Cookie{c}
		}
	}
	return rec
}

// begin starts a handshake and returns the nonce the provider would see.
func (b *browser) begin() string {
	b.h.t.Helper()
	rec := b.do(http.MethodGet, "/auth/login/google", nil, "Accept", "application/json")
	require.Equal(b.h.t, http.StatusOK, rec.Code, rec.Body.String())
	var redirect models.RedirectInstruction
	require.NoError(b.h.t, json.Unmarshal(rec.Body.Bytes(), &redirect))
	u, err := url.Parse(redirect.URL)
	require.NoError(b.h.t, err)
	nonce := u.Query().Get("nonce")
	require.NotEmpty(b.h.t, nonce)
	return nonce
}

// login runs the whole handshake and returns the session view.
func (b *browser) login(subject, email string) sessionResponse {
	b.h.t.Helper()
	nonce := b.begin()
	rec := b.do(http.MethodPost, "/auth/callback", callbackRequest{IDToken: b.h.idToken(subject, email, nonce)})
	require.Equal(b.h.t, http.StatusOK, rec.Code, rec.Body.String())
	var sess sessionResponse
	require.NoError(b.h.t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}
