//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zkbadge/internal/auth/store/session"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = session.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestSaveReplacesPreviousToken() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "client-a", "token-1", time.Minute))
	s.Require().NoError(s.store.Save(ctx, "client-a", "token-2", time.Minute))

	got, err := s.store.Load(ctx, "client-a")
	s.Require().NoError(err)
	s.Equal("token-2", got)
}

func (s *RedisStoreSuite) TestTokenExpiresWithTTL() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "client-b", "token", time.Second))

	s.Eventually(func() bool {
		_, err := s.store.Load(ctx, "client-b")
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)

	_, err := s.store.Load(ctx, "client-b")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestDeleteIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "client-c", "token", time.Minute))
	s.Require().NoError(s.store.Delete(ctx, "client-c"))
	s.Require().NoError(s.store.Delete(ctx, "client-c"))

	_, err := s.store.Load(ctx, "client-c")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
