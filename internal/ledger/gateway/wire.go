package gateway

import (
	"zkbadge/internal/ledger"
	"zkbadge/pkg/domain"
)

// Wire types shared by the relay client and handler.

type registerRequest struct {
	Registry string                `json:"registry"`
	Intent   ledger.RegisterMember `json:"intent"`
}

type domainRequest struct {
	Registry string `json:"registry"`
	AdminCap string `json:"admin_cap"`
	Pattern  string `json:"pattern"`
}

type revokeRequest struct {
	Registry string         `json:"registry"`
	AdminCap string         `json:"admin_cap"`
	Member   domain.Address `json:"member"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type allowedResponse struct {
	Allowed bool `json:"allowed"`
}

type errorResponse struct {
	Category ledger.Category `json:"category"`
	Message  string          `json:"message"`
}
