package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/platform/middleware"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/platform/httputil"
	"zkbadge/pkg/requestcontext"
)

// HandshakeService runs the two phases of a zkLogin handshake.
type HandshakeService interface {
	BeginHandshake(ctx context.Context, clientKey string, provider authModel.Provider) (*authModel.RedirectInstruction, error)
	CompleteHandshake(ctx context.Context, clientKey, rawToken string) (*authModel.HandshakeResult, error)
}

// SessionService turns a completed handshake into a session.
type SessionService interface {
	Login(ctx context.Context, clientKey string, result *authModel.HandshakeResult) (*authModel.Session, error)
	Logout(ctx context.Context, clientKey string) error
}

// AuthHandler serves the login flow.
type AuthHandler struct {
	handshakes HandshakeService
	sessions   SessionService
	logger     *slog.Logger
}

func NewAuthHandler(handshakes HandshakeService, sessions SessionService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{handshakes: handshakes, sessions: sessions, logger: logger}
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Get("/auth/login/{provider}", h.handleLogin)
	r.Get("/auth/callback", h.handleCallback)
	r.Post("/auth/callback", h.handleCallback)
	r.Post("/auth/logout", h.handleLogout)
	r.With(middleware.RequireSession(h.logger)).Get("/auth/me", h.handleMe)
}

// handleLogin starts a handshake. Browsers are redirected; API clients that
// accept JSON receive the redirect instruction instead.
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := authModel.Provider(chi.URLParam(r, "provider"))

	redirect, err := h.handshakes.BeginHandshake(ctx, requestcontext.ClientKey(ctx), provider)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to begin handshake",
			"provider", string(provider),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httputil.WriteJSON(w, http.StatusOK, redirect)
		return
	}
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// handleCallback accepts the ID token as an id_token query parameter, a form
// post (the provider's form_post response mode) or a JSON body.
func (h *AuthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientKey := requestcontext.ClientKey(ctx)

	rawToken, err := callbackToken(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.handshakes.CompleteHandshake(ctx, clientKey, strings.TrimSpace(rawToken))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sess, err := h.sessions.Login(ctx, clientKey, result)
	if err != nil {
		result.Ephemeral.Destroy()
		h.logger.ErrorContext(ctx, "failed to create session",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(sess, requestcontext.Now(ctx)))
}

func callbackToken(w http.ResponseWriter, r *http.Request) (string, error) {
	switch {
	case r.Method == http.MethodGet:
		return r.URL.Query().Get("id_token"), nil
	case strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"):
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return "", dErrors.New(dErrors.CodeBadRequest, "invalid form body")
		}
		return r.PostForm.Get("id_token"), nil
	}
	var req callbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return req.IDToken, nil
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessions.Logout(ctx, requestcontext.ClientKey(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "failed to log out",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(middleware.GetSession(ctx), requestcontext.Now(ctx)))
}
