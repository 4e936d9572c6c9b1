package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/membership/models"
	"zkbadge/internal/platform/middleware"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/platform/httputil"
	"zkbadge/pkg/requestcontext"
)

// MemberRegistry is the holder-facing side of the credential registry.
type MemberRegistry interface {
	Register(ctx context.Context, sess *authModel.Session, profile models.Profile) (*models.Credential, error)
	Resubmit(ctx context.Context, sess *authModel.Session) (*models.Credential, error)
	ForHolder(ctx context.Context, holder domain.Address) (*models.Credential, error)
	List(ctx context.Context) ([]models.Credential, error)
}

// BadgeVerifier answers public badge checks.
type BadgeVerifier interface {
	Verify(ctx context.Context, rawID, claimed string) (models.VerificationResult, error)
}

// DomainLister reads the whitelist.
type DomainLister interface {
	List(ctx context.Context) ([]models.WhitelistedDomain, error)
}

// MemberHandler serves registration, the holder's own badge, the public
// member directory, public verification and the whitelist.
type MemberHandler struct {
	registry MemberRegistry
	verifier BadgeVerifier
	domains  DomainLister
	logger   *slog.Logger
}

func NewMemberHandler(registry MemberRegistry, verifier BadgeVerifier, domains DomainLister, logger *slog.Logger) *MemberHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberHandler{registry: registry, verifier: verifier, domains: domains, logger: logger}
}

func (h *MemberHandler) Register(r chi.Router) {
	r.Get("/members", h.handleListMembers)
	r.Get("/members/verify", h.handleVerify)
	r.Get("/domains", h.handleListDomains)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.logger))
		r.Post("/members", h.handleRegister)
		r.Get("/members/me", h.handleMine)
		r.Post("/members/resubmit", h.handleResubmit)
	})
}

func (h *MemberHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := middleware.GetSession(ctx)

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	// The email always comes from the verified identity.
	cred, err := h.registry.Register(ctx, sess, models.Profile{
		Name:          req.Name,
		Program:       req.Program,
		StudentNumber: req.StudentNumber,
		Email:         sess.Identity.Email,
	})
	if err != nil {
		h.logFailure(ctx, "registration failed", err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if !cred.Confirmed && cred.TxDigest == "" {
		// Stored but not yet accepted by the ledger; the holder may resubmit.
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, cred)
}

func (h *MemberHandler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cred, err := h.registry.Resubmit(ctx, middleware.GetSession(ctx))
	if err != nil {
		h.logFailure(ctx, "resubmission failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cred)
}

func (h *MemberHandler) handleMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cred, err := h.registry.ForHolder(ctx, middleware.GetSession(ctx).Identity.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if cred == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeCredentialNotFound, "no credential for this account"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cred)
}

// handleListMembers is public. Entries go through toPublicMember, so contact
// details and student numbers never leave the service.
func (h *MemberHandler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	creds, err := h.registry.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]publicMember, 0, len(creds))
	for _, c := range creds {
		out = append(out, toPublicMember(c))
	}
	httputil.WriteJSON(w, http.StatusOK, newList(out))
}

// handleVerify is public: anyone holding a badge id and an address may ask
// whether they match.
func (h *MemberHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	res, err := h.verifier.Verify(ctx, q.Get("badge_id"), q.Get("address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(res))
}

func (h *MemberHandler) handleListDomains(w http.ResponseWriter, r *http.Request) {
	list, err := h.domains.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newList(list))
}

func (h *MemberHandler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"code", string(dErrors.CodeOf(err)),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
