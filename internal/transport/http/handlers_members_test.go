package httptransport

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/suite"

	"zkbadge/internal/ledger"
	"zkbadge/internal/membership/models"
	dErrors "zkbadge/pkg/domain-errors"
)

type MemberHandlerSuite struct {
	suite.Suite
	h *harness
}

func TestMemberHandlerSuite(t *testing.T) {
	suite.Run(t, new(MemberHandlerSuite))
}

func (s *MemberHandlerSuite) SetupTest() {
	s.h = newHarness(s.T())
}

func validRegistration() registerRequest {
	return registerRequest{Name: "Alice Doe", Program: "Computer Science", StudentNumber: "S-1001"}
}

func (s *MemberHandlerSuite) TestRegister() {
	s.Run("requires a session", func() {
		rec := s.h.browser().do(http.MethodPost, "/members", validRegistration())
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("creates a pending credential for the session address", func() {
		b := s.h.browser()
		sess := b.login("sub-1", "alice@university.edu")

		rec := b.do(http.MethodPost, "/members", validRegistration())
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		cred := decodeBody[models.Credential](s.T(), rec)
		s.Equal(models.StatusPending, cred.Status)
		s.Equal(sess.Address, cred.HolderAddress.String())
		s.Equal("alice@university.edu", cred.Email)
		s.NotEmpty(cred.TxDigest)

		rec = b.do(http.MethodPost, "/members", validRegistration())
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal(string(dErrors.CodeAlreadyRegistered), errorCode(s.T(), rec))

		rec = b.do(http.MethodGet, "/members/me", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(cred.ID, decodeBody[models.Credential](s.T(), rec).ID)
	})

	s.Run("email outside the whitelist is forbidden", func() {
		b := s.h.browser()
		b.login("sub-2", "mallory@elsewhere.org")
		rec := b.do(http.MethodPost, "/members", validRegistration())
		s.Equal(http.StatusForbidden, rec.Code)
		s.Equal(string(dErrors.CodeDomainNotAllowed), errorCode(s.T(), rec))
	})

	s.Run("profile is validated", func() {
		b := s.h.browser()
		b.login("sub-3", "bob@university.edu")
		req := validRegistration()
		req.Name = " B "
		rec := b.do(http.MethodPost, "/members", req)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(string(dErrors.CodeValidation), errorCode(s.T(), rec))
	})

	s.Run("no credential yet", func() {
		b := s.h.browser()
		b.login("sub-4", "carol@university.edu")
		rec := b.do(http.MethodGet, "/members/me", nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *MemberHandlerSuite) TestListMembersIsPublic() {
	rec := s.h.browser().do(http.MethodGet, "/members", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Zero(decodeBody[listResponse[publicMember]](s.T(), rec).Count)

	member := s.h.browser()
	sess := member.login("sub-1", "alice@university.edu")
	s.Require().Equal(http.StatusCreated, member.do(http.MethodPost, "/members", validRegistration()).Code)

	s.Equal(http.StatusUnauthorized, s.h.browser().do(http.MethodGet, "/members/me", nil).Code)

	rec = s.h.browser().do(http.MethodGet, "/members", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.NotContains(rec.Body.String(), "S-1001")
	s.NotContains(rec.Body.String(), "alice@university.edu")

	list := decodeBody[listResponse[publicMember]](s.T(), rec)
	s.Require().Equal(1, list.Count)
	entry := list.Items[0]
	s.Equal(sess.Address, entry.Address)
	s.Equal("Alice Doe", entry.Name)
	s.Equal("Computer Science", entry.Program)
	s.Equal("@university.edu", entry.EmailDomain)
	s.Equal(models.StatusPending, entry.Status)
}

func (s *MemberHandlerSuite) TestRegisterWhileLedgerIsDown() {
	b := s.h.browser()
	b.login("sub-1", "alice@university.edu")

	s.h.ledger.FailNext(ledger.NewError(ledger.CategoryUnavailable, "register_member", "node down", nil))
	rec := b.do(http.MethodPost, "/members", validRegistration())
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	cred := decodeBody[models.Credential](s.T(), rec)
	s.Empty(cred.TxDigest)

	rec = b.do(http.MethodPost, "/members/resubmit", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.NotEmpty(decodeBody[models.Credential](s.T(), rec).TxDigest)

	rec = b.do(http.MethodPost, "/members/resubmit", nil)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *MemberHandlerSuite) TestVerify() {
	member := s.h.browser()
	sess := member.login("sub-1", "alice@university.edu")
	rec := member.do(http.MethodPost, "/members", validRegistration())
	s.Require().Equal(http.StatusCreated, rec.Code)
	cred := decodeBody[models.Credential](s.T(), rec)

	verify := func(badgeID, address string) verifyResponse {
		q := url.Values{"badge_id": {badgeID}, "address": {address}}
		rec := s.h.browser().do(http.MethodGet, "/members/verify?"+q.Encode(), nil)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		s.NotContains(rec.Body.String(), "S-1001")
		s.NotContains(rec.Body.String(), "alice@university.edu")
		return decodeBody[verifyResponse](s.T(), rec)
	}

	res := verify(cred.ID.String(), sess.Address)
	s.False(res.Valid)
	s.Equal(models.ReasonNotVerified, res.Reason)

	admin := s.h.browser()
	admin.login("sub-admin", adminEmail)
	rec = admin.do(http.MethodPost, "/admin/members/"+cred.ID.String()+"/verify", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	res = verify(cred.ID.String(), sess.Address)
	s.True(res.Valid)
	s.Equal(models.ReasonValid, res.Reason)
	s.Equal("Alice Doe", res.Name)
	s.True(res.Confirmed)
	s.True(res.LedgerChecked)

	s.Equal(models.ReasonAddressMismatch, verify(cred.ID.String(), "0xdeadbeef").Reason)
	s.Equal(models.ReasonNotFound, verify("not-a-uuid", sess.Address).Reason)
}

func (s *MemberHandlerSuite) TestListDomains() {
	rec := s.h.browser().do(http.MethodGet, "/domains", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	list := decodeBody[listResponse[models.WhitelistedDomain]](s.T(), rec)
	s.Equal(1, list.Count)
	s.Equal("@university.edu", list.Items[0].Pattern)
}
