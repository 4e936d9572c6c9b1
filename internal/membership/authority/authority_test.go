package authority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zkbadge/internal/admin/capability"
	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/ledger"
	"zkbadge/internal/membership/models"
	domainstore "zkbadge/internal/membership/store/domain"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/requestcontext"
)

type AuthoritySuite struct {
	suite.Suite
	ctx    context.Context
	keeper *capability.Keeper
	token  *capability.Token
	auth   *Authority
}

func TestAuthoritySuite(t *testing.T) {
	suite.Run(t, new(AuthoritySuite))
}

func (s *AuthoritySuite) SetupTest() {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.keeper = capability.NewKeeper(ledger.AdminCap{ObjectID: "0xcap"})
	tok, err := s.keeper.Mint(&authModel.Session{
		ID:        domain.NewSessionID(),
		Identity:  authModel.Identity{Email: "dean@university.edu"},
		IsAdmin:   true,
		ExpiresAt: now.Add(time.Hour),
	}, now)
	s.Require().NoError(err)
	s.token = tok
	s.auth = New(domainstore.NewInMemory(), s.keeper)
}

func (s *AuthoritySuite) TestEmptyWhitelistFailsClosed() {
	s.False(s.auth.IsAllowed(s.ctx, "alice@university.edu"))
}

func (s *AuthoritySuite) TestIsAllowed() {
	_, err := s.auth.Add(s.ctx, s.token, "@university.edu")
	s.Require().NoError(err)

	cases := map[string]bool{
		"alice@university.edu":           true,
		"ALICE@University.EDU":           true,
		"bob@gradschool.university.edu":  false,
		"mallory@evil-university.edu":    false,
		"mallory@university.edu.evil.io": false,
		"no-at-sign":                     false,
		"":                               false,
	}
	for email, want := range cases {
		s.Equal(want, s.auth.IsAllowed(s.ctx, email), email)
	}
}

func (s *AuthoritySuite) TestAddRejectsMalformedPatterns() {
	for _, raw := range []string{"invalid.com", "@nodot", "@university.edu.", ""} {
		_, err := s.auth.Add(s.ctx, s.token, raw)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidDomainFormat), raw)
	}
	all, err := s.auth.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *AuthoritySuite) TestDuplicates() {
	_, err := s.auth.Add(s.ctx, s.token, "@university.edu")
	s.Require().NoError(err)

	_, err = s.auth.PrepareAdd(s.ctx, "@UNIVERSITY.edu")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateDomain))

	_, err = s.auth.Add(s.ctx, s.token, "@University.Edu")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateDomain))

	pattern, err := s.auth.PrepareAdd(s.ctx, " @College.EDU ")
	s.Require().NoError(err)
	s.Equal("@college.edu", pattern)
}

func (s *AuthoritySuite) TestMutationsRequireCapability() {
	_, err := s.auth.Add(s.ctx, nil, "@university.edu")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	forged := &capability.Token{}
	s.True(dErrors.HasCode(s.auth.Remove(s.ctx, forged, domain.NewDomainID()), dErrors.CodeUnauthorized))
}

func (s *AuthoritySuite) TestRemove() {
	d, err := s.auth.Add(s.ctx, s.token, "@university.edu")
	s.Require().NoError(err)
	s.True(s.auth.IsAllowed(s.ctx, "alice@university.edu"))

	s.Require().NoError(s.auth.Remove(s.ctx, s.token, d.ID))
	s.False(s.auth.IsAllowed(s.ctx, "alice@university.edu"))

	err = s.auth.Remove(s.ctx, s.token, d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AuthoritySuite) TestOrderIndependence() {
	apply := func(ops []func(*Authority)) *Authority {
		a := New(domainstore.NewInMemory(), s.keeper)
		for _, op := range ops {
			op(a)
		}
		return a
	}
	add := func(p string) func(*Authority) {
		return func(a *Authority) { _, _ = a.Add(s.ctx, s.token, p) }
	}
	remove := func(p string) func(*Authority) {
		return func(a *Authority) {
			all, _ := a.List(s.ctx)
			for _, d := range all {
				if d.Pattern == p {
					_ = a.Remove(s.ctx, s.token, d.ID)
				}
			}
		}
	}

	first := apply([]func(*Authority){add("@a.edu"), add("@b.edu"), remove("@a.edu"), add("@c.edu")})
	second := apply([]func(*Authority){add("@c.edu"), add("@b.edu")})

	for _, email := range []string{"x@a.edu", "x@b.edu", "x@c.edu", "x@d.edu"} {
		s.Equal(second.IsAllowed(s.ctx, email), first.IsAllowed(s.ctx, email), email)
	}
}

func (s *AuthoritySuite) TestSeedOnlyWhenEmpty() {
	s.Require().NoError(s.auth.Seed(s.ctx, []string{"@university.edu", "@gradschool.university.edu"}))
	s.True(s.auth.IsAllowed(s.ctx, "bob@gradschool.university.edu"))

	s.Require().NoError(s.auth.Seed(s.ctx, []string{"@other.edu"}))
	s.False(s.auth.IsAllowed(s.ctx, "x@other.edu"))
}

type failingStore struct{ *domainstore.InMemoryStore }

func (*failingStore) List(context.Context) ([]models.WhitelistedDomain, error) {
	return nil, errors.New("connection refused")
}

func (s *AuthoritySuite) TestStoreFailureDenies() {
	a := New(&failingStore{InMemoryStore: domainstore.NewInMemory()}, s.keeper)
	s.False(a.IsAllowed(s.ctx, "alice@university.edu"))
}
