package httptransport

import (
	"time"

	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/membership/models"
	"zkbadge/pkg/email"
)

type callbackRequest struct {
	IDToken string `json:"id_token"`
}

type registerRequest struct {
	Name          string `json:"name"`
	Program       string `json:"program"`
	StudentNumber string `json:"student_number"`
}

type addDomainRequest struct {
	Pattern string `json:"pattern"`
}

// sessionResponse never includes key material or the nonce.
type sessionResponse struct {
	Address   string    `json:"address"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CanSign   bool      `json:"can_sign"`
	Device    string    `json:"device,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toSessionResponse(sess *authModel.Session, now time.Time) sessionResponse {
	return sessionResponse{
		Address:   sess.Identity.Address.String(),
		Email:     sess.Identity.Email,
		Name:      sess.Identity.Name,
		IsAdmin:   sess.IsAdmin,
		CanSign:   sess.CanSign(now),
		Device:    sess.Device,
		ExpiresAt: sess.ExpiresAt,
	}
}

// verifyResponse is the public view of a verification. Contact details and
// the student number stay private.
type verifyResponse struct {
	Valid         bool          `json:"valid"`
	Reason        models.Reason `json:"reason"`
	LedgerChecked bool          `json:"ledger_checked"`
	BadgeID       string        `json:"badge_id,omitempty"`
	Name          string        `json:"name,omitempty"`
	Program       string        `json:"program,omitempty"`
	Status        models.Status `json:"status,omitempty"`
	Confirmed     bool          `json:"confirmed,omitempty"`
}

func toVerifyResponse(res models.VerificationResult) verifyResponse {
	out := verifyResponse{Valid: res.Valid, Reason: res.Reason, LedgerChecked: res.LedgerChecked}
	if res.Valid && res.Credential != nil {
		out.BadgeID = res.Credential.ID.String()
		out.Name = res.Credential.Name
		out.Program = res.Credential.Program
		out.Status = res.Credential.Status
		out.Confirmed = res.Credential.Confirmed
	}
	return out
}

// publicMember is the directory entry for a badge. The email is reduced to
// its domain and the student number is left out.
type publicMember struct {
	BadgeID     string        `json:"badge_id"`
	Address     string        `json:"address"`
	Name        string        `json:"name"`
	Program     string        `json:"program"`
	EmailDomain string        `json:"email_domain"`
	Status      models.Status `json:"status"`
	Confirmed   bool          `json:"confirmed"`
	CreatedAt   time.Time     `json:"created_at"`
}

func toPublicMember(c models.Credential) publicMember {
	return publicMember{
		BadgeID:     c.ID.String(),
		Address:     c.HolderAddress.String(),
		Name:        c.Name,
		Program:     c.Program,
		EmailDomain: email.Domain(c.Email),
		Status:      c.Status,
		Confirmed:   c.Confirmed,
		CreatedAt:   c.CreatedAt,
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}
