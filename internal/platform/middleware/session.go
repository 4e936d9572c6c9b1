package middleware

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"

	"zkbadge/internal/auth/models"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/platform/httputil"
	"zkbadge/pkg/requestcontext"
)

// ClientCookie names the cookie holding the opaque per-client key that
// handshake material and session state are stored under.
const ClientCookie = "zkbadge_client"

const clientKeyBytes = 32

// SessionResolver returns the current session for a client key, or nil when
// the client is not logged in.
type SessionResolver interface {
	Current(ctx context.Context, clientKey string) (*models.Session, error)
}

type contextKeySession struct{}

// GetSession retrieves the authenticated session from the context.
func GetSession(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(contextKeySession{}).(*models.Session)
	return sess
}

// WithSession injects a session into a context. Handler tests use it to skip
// the cookie round trip.
func WithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, contextKeySession{}, sess)
}

// ClientKey makes sure every request carries a client key cookie, minting a
// fresh one when it is missing or malformed.
func ClientKey(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if c, err := r.Cookie(ClientCookie); err == nil && validClientKey(c.Value) {
				key = c.Value
			}
			if key == "" {
				key = newClientKey()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookie,
					Value:    key,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithClientKey(r.Context(), key)))
		})
	}
}

// LoadSession resolves the session bound to the client key, if any. Storage
// failures are reported; an absent session is not an error here.
func LoadSession(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := resolver.Current(ctx, requestcontext.ClientKey(ctx))
			if err != nil {
				logger.ErrorContext(ctx, "failed to resolve session",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			if sess != nil {
				ctx = WithSession(ctx, sess)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests without a logged-in session.
func RequireSession(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if GetSession(ctx) == nil {
				logger.WarnContext(ctx, "unauthorized access - no session",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects sessions that do not carry the admin flag. It must
// run after RequireSession.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := GetSession(ctx)
			if sess == nil || !sess.IsAdmin {
				logger.WarnContext(ctx, "admin access denied",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin privileges required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newClientKey() string {
	b := make([]byte, clientKeyBytes)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func validClientKey(v string) bool {
	b, err := base64.RawURLEncoding.DecodeString(v)
	return err == nil && len(b) == clientKeyBytes
}
