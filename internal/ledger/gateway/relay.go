package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkbadge/internal/ledger"
	"zkbadge/pkg/domain"
	"zkbadge/pkg/platform/httputil"
)

// NewRelayHandler exposes backend over the relay protocol. It serves the
// development relay binary and client tests.
func NewRelayHandler(registryRef string, backend ledger.Client) http.Handler {
	h := &relay{registryRef: registryRef, backend: backend}
	r := chi.NewRouter()
	r.Post("/v1/members/register", h.register)
	r.Post("/v1/members/revoke", h.revoke)
	r.Get("/v1/members/{address}", h.member)
	r.Get("/v1/badges/{badgeID}/verify", h.verify)
	r.Get("/v1/domains/allowed", h.allowed)
	r.Post("/v1/domains/add", h.addDomain)
	r.Post("/v1/domains/remove", h.removeDomain)
	r.Get("/v1/transactions/{digest}", h.effects)
	return r
}

type relay struct {
	registryRef string
	backend     ledger.Client
}

func (h *relay) decode(w http.ResponseWriter, r *http.Request, op string, dst any, registry func() string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeLedgerError(w, ledger.NewError(ledger.CategoryMalformed, op, "invalid json", err))
		return false
	}
	if registry() != h.registryRef {
		writeLedgerError(w, ledger.NewError(ledger.CategoryMalformed, op, "unknown registry", nil))
		return false
	}
	return true
}

func (h *relay) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, "register_member", &req, func() string { return req.Registry }) {
		return
	}
	receipt, err := h.backend.RegisterMember(r.Context(), req.Intent)
	respond(w, receipt, err)
}

func (h *relay) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !h.decode(w, r, "revoke_membership", &req, func() string { return req.Registry }) {
		return
	}
	receipt, err := h.backend.RevokeMembership(r.Context(), ledger.AdminCap{ObjectID: req.AdminCap}, req.Member)
	respond(w, receipt, err)
}

func (h *relay) addDomain(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if !h.decode(w, r, "add_allowed_domain", &req, func() string { return req.Registry }) {
		return
	}
	receipt, err := h.backend.AddAllowedDomain(r.Context(), ledger.AdminCap{ObjectID: req.AdminCap}, req.Pattern)
	respond(w, receipt, err)
}

func (h *relay) removeDomain(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if !h.decode(w, r, "remove_allowed_domain", &req, func() string { return req.Registry }) {
		return
	}
	receipt, err := h.backend.RemoveAllowedDomain(r.Context(), ledger.AdminCap{ObjectID: req.AdminCap}, req.Pattern)
	respond(w, receipt, err)
}

func (h *relay) member(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backend.MemberRecord(r.Context(), domain.Address(chi.URLParam(r, "address")))
	respond(w, rec, err)
}

func (h *relay) verify(w http.ResponseWriter, r *http.Request) {
	ok, err := h.backend.VerifyBadge(r.Context(), chi.URLParam(r, "badgeID"), domain.Address(r.URL.Query().Get("address")))
	respond(w, verifyResponse{Valid: ok}, err)
}

func (h *relay) allowed(w http.ResponseWriter, r *http.Request) {
	ok, err := h.backend.IsDomainAllowed(r.Context(), r.URL.Query().Get("domain"))
	respond(w, allowedResponse{Allowed: ok}, err)
}

func (h *relay) effects(w http.ResponseWriter, r *http.Request) {
	fx, err := h.backend.TransactionEffects(r.Context(), chi.URLParam(r, "digest"))
	respond(w, fx, err)
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func writeLedgerError(w http.ResponseWriter, err error) {
	category := ledger.CategoryOf(err)
	httputil.WriteJSON(w, statusFor(category), errorResponse{Category: category, Message: err.Error()})
}

func statusFor(c ledger.Category) int {
	switch c {
	case ledger.CategoryTimeout:
		return http.StatusGatewayTimeout
	case ledger.CategoryRateLimited:
		return http.StatusTooManyRequests
	case ledger.CategoryRejected:
		return http.StatusUnprocessableEntity
	case ledger.CategoryUnauthorized:
		return http.StatusForbidden
	case ledger.CategoryInsufficientGas:
		return http.StatusPaymentRequired
	case ledger.CategoryMalformed:
		return http.StatusBadRequest
	case ledger.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}
