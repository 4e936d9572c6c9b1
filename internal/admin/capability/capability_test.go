package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authModel "zkbadge/internal/auth/models"
	"zkbadge/internal/ledger"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
)

type KeeperSuite struct {
	suite.Suite
	keeper *Keeper
	now    time.Time
}

func TestKeeperSuite(t *testing.T) {
	suite.Run(t, new(KeeperSuite))
}

func (s *KeeperSuite) SetupTest() {
	s.keeper = NewKeeper(ledger.AdminCap{ObjectID: "0xcap"})
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *KeeperSuite) session(admin bool) *authModel.Session {
	return &authModel.Session{
		ID:        domain.NewSessionID(),
		Identity:  authModel.Identity{Email: "dean@university.edu", Address: "0xabc"},
		IsAdmin:   admin,
		ExpiresAt: s.now.Add(time.Hour),
	}
}

func (s *KeeperSuite) TestMint() {
	s.Run("admin session", func() {
		tok, err := s.keeper.Mint(s.session(true), s.now)
		s.Require().NoError(err)
		s.Equal("dean@university.edu", tok.Actor())
		s.NoError(s.keeper.Check(tok, s.now))
	})

	s.Run("non admin session", func() {
		_, err := s.keeper.Mint(s.session(false), s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("no session", func() {
		_, err := s.keeper.Mint(nil, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("expired session", func() {
		_, err := s.keeper.Mint(s.session(true), s.now.Add(2*time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *KeeperSuite) TestForeignAndZeroTokensRejected() {
	other := NewKeeper(ledger.AdminCap{ObjectID: "0xcap"})
	tok, err := other.Mint(s.session(true), s.now)
	s.Require().NoError(err)

	s.True(dErrors.HasCode(s.keeper.Check(tok, s.now), dErrors.CodeUnauthorized))
	s.True(dErrors.HasCode(s.keeper.Check(&Token{}, s.now), dErrors.CodeUnauthorized))
	s.True(dErrors.HasCode(s.keeper.Check(nil, s.now), dErrors.CodeUnauthorized))
}

func (s *KeeperSuite) TestTokenExpiresWithSession() {
	tok, err := s.keeper.Mint(s.session(true), s.now)
	s.Require().NoError(err)
	s.True(dErrors.HasCode(s.keeper.Check(tok, s.now.Add(time.Hour)), dErrors.CodeUnauthorized))
}

func (s *KeeperSuite) TestAcquireIsExclusive() {
	tok, err := s.keeper.Mint(s.session(true), s.now)
	s.Require().NoError(err)

	lease, err := s.keeper.Acquire(context.Background(), tok, s.now)
	s.Require().NoError(err)
	s.Equal("0xcap", lease.Cap.ObjectID)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.keeper.Acquire(ctx, tok, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

	lease.Release()
	lease.Release()

	second, err := s.keeper.Acquire(context.Background(), tok, s.now)
	s.Require().NoError(err)
	second.Release()
}
