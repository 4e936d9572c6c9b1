package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zkbadge/internal/audit"
	"zkbadge/internal/auth/models"
	"zkbadge/internal/auth/store/pending"
	sessionstore "zkbadge/internal/auth/store/session"
	"zkbadge/internal/auth/zklogin"
	jwttoken "zkbadge/internal/jwt_token"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/requestcontext"
)

type ManagerSuite struct {
	suite.Suite
	now     time.Time
	ctx     context.Context
	store   *sessionstore.InMemorySessionStore
	pending *pending.InMemoryStore
	audit   *audit.InMemoryStore
	manager *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.now = time.Now().Truncate(time.Second)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithUserAgent(s.ctx, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	s.store = sessionstore.NewInMemorySessionStore()
	s.pending = pending.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	s.manager = NewManager(
		s.store,
		jwttoken.NewJWTService("0123456789abcdef0123456789abcdef", "zkbadge", "zkbadge-session"),
		s.pending,
		NewAdminPolicy([]string{"Admin@University.edu"}, nil),
		WithTTL(time.Hour),
		WithAuditPublisher(audit.NewPublisher(s.audit, nil)),
	)
}

func (s *ManagerSuite) result(email string) *models.HandshakeResult {
	key, err := zklogin.GenerateEphemeralKey(nil)
	s.Require().NoError(err)
	return &models.HandshakeResult{
		Identity: models.Identity{
			SubjectID: "subject-" + email,
			Issuer:    "https://accounts.google.com",
			Email:     email,
			Address:   domain.Address("0x" + strings.Repeat("cd", 32)),
		},
		Ephemeral: key,
		Nonce:     "nonce",
		MaxEpoch:  uint64(s.now.Add(24 * time.Hour).Unix()),
	}
}

func (s *ManagerSuite) TestLogin() {
	s.Run("admin flag comes from policy", func() {
		sess, err := s.manager.Login(s.ctx, "client-1", s.result("admin@university.edu"))
		s.Require().NoError(err)
		s.True(sess.IsAdmin)
		s.True(sess.CanSign(s.now))
		s.Contains(sess.Device, "Chrome on")
		s.Equal(s.now.Add(time.Hour), sess.ExpiresAt)
	})

	s.Run("non admin", func() {
		sess, err := s.manager.Login(s.ctx, "client-2", s.result("alice@university.edu"))
		s.Require().NoError(err)
		s.False(sess.IsAdmin)
	})

	s.Run("new login erases previous session key", func() {
		first, err := s.manager.Login(s.ctx, "client-3", s.result("alice@university.edu"))
		s.Require().NoError(err)
		second, err := s.manager.Login(s.ctx, "client-3", s.result("alice@university.edu"))
		s.Require().NoError(err)
		s.True(first.Ephemeral.Destroyed())
		s.False(second.Ephemeral.Destroyed())
	})

	s.Run("key bound caps session lifetime", func() {
		r := s.result("alice@university.edu")
		r.MaxEpoch = uint64(s.now.Add(10 * time.Minute).Unix())
		sess, err := s.manager.Login(s.ctx, "client-4", r)
		s.Require().NoError(err)
		s.Equal(s.now.Add(10*time.Minute), sess.ExpiresAt)
	})

	s.Run("incomplete identity", func() {
		r := s.result("alice@university.edu")
		r.Identity.Email = ""
		_, err := s.manager.Login(s.ctx, "client-5", r)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ManagerSuite) TestRestore() {
	s.Run("restored session has identity but no key", func() {
		_, err := s.manager.Login(s.ctx, "client-1", s.result("admin@university.edu"))
		s.Require().NoError(err)

		restored, err := s.manager.Restore(s.ctx, "client-1")
		s.Require().NoError(err)
		s.Require().NotNil(restored)
		s.True(restored.IsAdmin)
		s.Equal("admin@university.edu", restored.Identity.Email)
		s.Nil(restored.Ephemeral)
		s.False(restored.CanSign(s.now))
	})

	s.Run("nothing stored", func() {
		restored, err := s.manager.Restore(s.ctx, "nobody")
		s.NoError(err)
		s.Nil(restored)
	})

	s.Run("tampered state returns nil and is removed", func() {
		s.Require().NoError(s.store.Save(s.ctx, "client-x", "not-a-token", time.Hour))
		restored, err := s.manager.Restore(s.ctx, "client-x")
		s.NoError(err)
		s.Nil(restored)

		_, err = s.store.Load(s.ctx, "client-x")
		s.Error(err)
	})

	s.Run("expired session returns nil", func() {
		_, err := s.manager.Login(s.ctx, "client-2", s.result("alice@university.edu"))
		s.Require().NoError(err)
		later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
		restored, err := s.manager.Restore(later, "client-2")
		s.NoError(err)
		s.Nil(restored)
	})
}

func (s *ManagerSuite) TestCurrentPrefersLiveSession() {
	live, err := s.manager.Login(s.ctx, "client-1", s.result("alice@university.edu"))
	s.Require().NoError(err)

	got, err := s.manager.Current(s.ctx, "client-1")
	s.Require().NoError(err)
	s.Same(live, got)
}

func (s *ManagerSuite) TestLogout() {
	sess, err := s.manager.Login(s.ctx, "client-1", s.result("alice@university.edu"))
	s.Require().NoError(err)
	s.Require().NoError(s.pending.Put(s.ctx, "client-1", &models.PendingHandshake{
		Nonce:     "lingering",
		ExpiresAt: s.now.Add(time.Minute),
	}))

	s.Require().NoError(s.manager.Logout(s.ctx, "client-1"))

	s.True(sess.Ephemeral == nil || sess.Ephemeral.Destroyed())
	s.Empty(sess.Nonce)
	current, err := s.manager.Current(s.ctx, "client-1")
	s.NoError(err)
	s.Nil(current)
	_, err = s.pending.Take(s.ctx, "client-1")
	s.Error(err)

	s.Run("logout twice is harmless", func() {
		s.NoError(s.manager.Logout(s.ctx, "client-1"))
	})
}

func TestAdminPolicy(t *testing.T) {
	p := NewAdminPolicy([]string{" Ops@University.edu "}, []string{"sub-42"})
	cases := []struct {
		name string
		id   models.Identity
		want bool
	}{
		{"email match ignores case", models.Identity{Email: "ops@university.EDU", SubjectID: "x"}, true},
		{"subject match", models.Identity{Email: "someone@else.edu", SubjectID: "sub-42"}, true},
		{"no match", models.Identity{Email: "alice@university.edu", SubjectID: "sub-1"}, false},
		{"empty identity", models.Identity{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.IsAdmin(tc.id); got != tc.want {
				t.Fatalf("IsAdmin() = %v, want %v", got, tc.want)
			}
		})
	}
}
