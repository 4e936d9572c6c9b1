// Package session stores sealed session tokens keyed by client.
package session

import (
	"context"
	"sync"
	"time"

	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// InMemorySessionStore is the single-process session store.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]entry
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]entry)}
}

func (s *InMemorySessionStore) Save(ctx context.Context, clientKey, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[clientKey] = entry{token: token, expiresAt: requestcontext.Now(ctx).Add(ttl)}
	return nil
}

func (s *InMemorySessionStore) Load(ctx context.Context, clientKey string) (string, error) {
	s.mu.RLock()
	e, ok := s.sessions[clientKey]
	s.mu.RUnlock()
	if !ok || !requestcontext.Now(ctx).Before(e.expiresAt) {
		return "", sentinel.ErrNotFound
	}
	return e.token, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, clientKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, clientKey)
	return nil
}
