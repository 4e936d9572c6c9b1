package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"zkbadge/internal/auth/models"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

const pendingKeyPrefix = "zkbadge:handshake:"

// RedisStore keeps pending handshakes in Redis with a TTL equal to the
// handshake expiry, so abandoned attempts disappear on their own.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(clientKey string) string {
	return pendingKeyPrefix + clientKey
}

func (s *RedisStore) Put(ctx context.Context, clientKey string, h *models.PendingHandshake) error {
	ttl := h.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal pending handshake: %w", err)
	}
	if err := s.client.Set(ctx, s.key(clientKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("store pending handshake: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Take uses GETDEL so two concurrent completions cannot both obtain the
// material.
func (s *RedisStore) Take(ctx context.Context, clientKey string) (*models.PendingHandshake, error) {
	raw, err := s.client.GetDel(ctx, s.key(clientKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take pending handshake: %w: %w", sentinel.ErrUnavailable, err)
	}
	var h models.PendingHandshake
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decode pending handshake: %w", err)
	}
	if h.IsExpired(requestcontext.Now(ctx)) {
		h.Wipe()
		return nil, sentinel.ErrExpired
	}
	return &h, nil
}

func (s *RedisStore) Delete(ctx context.Context, clientKey string) error {
	if err := s.client.Del(ctx, s.key(clientKey)).Err(); err != nil {
		return fmt.Errorf("delete pending handshake: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
