package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zkbadge/pkg/platform/sentinel"
)

const sessionKeyPrefix = "zkbadge:session:"

// RedisStore keeps sealed session tokens in Redis so sessions survive
// restarts and are shared between replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, clientKey, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKeyPrefix+clientKey, token, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, clientKey string) (string, error) {
	token, err := s.client.Get(ctx, sessionKeyPrefix+clientKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return token, nil
}

func (s *RedisStore) Delete(ctx context.Context, clientKey string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+clientKey).Err(); err != nil {
		return fmt.Errorf("delete session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
