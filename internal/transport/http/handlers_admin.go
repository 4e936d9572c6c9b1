package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zkbadge/internal/admin/capability"
	"zkbadge/internal/admin/executor"
	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/membership/models"
	"zkbadge/internal/membership/reconcile"
	"zkbadge/internal/platform/middleware"
	"zkbadge/pkg/domain"
	"zkbadge/pkg/platform/httputil"
	"zkbadge/pkg/requestcontext"
)

// CapabilityMinter issues admin tokens to admin sessions.
type CapabilityMinter interface {
	Mint(sess *authModel.Session, now time.Time) (*capability.Token, error)
}

// CommandExecutor runs privileged commands.
type CommandExecutor interface {
	Execute(ctx context.Context, tok *capability.Token, cmd executor.Command) (*executor.Result, error)
}

// CredentialReader is the read side of the registry admins use.
type CredentialReader interface {
	Get(ctx context.Context, id domain.BadgeID) (*models.Credential, error)
	List(ctx context.Context) ([]models.Credential, error)
	ListUnconfirmed(ctx context.Context) ([]models.Credential, error)
}

// ReconcileRunner runs an on-demand reconciliation pass.
type ReconcileRunner interface {
	ReconcileAll(ctx context.Context) (reconcile.Summary, error)
}

// AdminHandler serves the privileged routes. Every mutation goes through the
// executor with a capability token minted from the caller's session.
type AdminHandler struct {
	caps        CapabilityMinter
	exec        CommandExecutor
	credentials CredentialReader
	reconciler  ReconcileRunner
	logger      *slog.Logger
}

func NewAdminHandler(caps CapabilityMinter, exec CommandExecutor, credentials CredentialReader, reconciler ReconcileRunner, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{caps: caps, exec: exec, credentials: credentials, reconciler: reconciler, logger: logger}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireSession(h.logger))
		r.Use(middleware.RequireAdmin(h.logger))
		r.Post("/domains", h.handleAddDomain)
		r.Delete("/domains/{id}", h.handleRemoveDomain)
		r.Get("/members", h.handleListMembers)
		r.Post("/members/{id}/verify", h.handleVerifyMember)
		r.Post("/members/{id}/revoke", h.handleRevokeMember)
		r.Post("/reconcile", h.handleReconcile)
	})
}

func (h *AdminHandler) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req addDomainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.execute(w, r, http.StatusCreated, executor.AddDomain{Pattern: req.Pattern})
}

func (h *AdminHandler) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseDomainID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.execute(w, r, http.StatusOK, executor.RemoveDomain{ID: id})
}

func (h *AdminHandler) handleVerifyMember(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBadgeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.execute(w, r, http.StatusOK, executor.VerifyMembership{BadgeID: id})
}

// handleRevokeMember addresses the badge by id; the ledger revokes by holder
// address.
func (h *AdminHandler) handleRevokeMember(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBadgeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cred, err := h.credentials.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.execute(w, r, http.StatusOK, executor.RevokeMembership{Address: cred.HolderAddress})
}

func (h *AdminHandler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list := h.credentials.List
	if r.URL.Query().Get("unconfirmed") == "true" {
		list = h.credentials.ListUnconfirmed
	}
	creds, err := list(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newList(creds))
}

func (h *AdminHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.reconciler.ReconcileAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "reconciliation pass failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *AdminHandler) execute(w http.ResponseWriter, r *http.Request, okStatus int, cmd executor.Command) {
	ctx := r.Context()
	tok, err := h.caps.Mint(middleware.GetSession(ctx), requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.exec.Execute(ctx, tok, cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "admin command failed",
			"command", cmd.Name(),
			"actor", tok.Actor(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, okStatus, res)
}
