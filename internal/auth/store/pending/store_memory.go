// Package pending stores in-flight handshake material between BeginHandshake
// and CompleteHandshake, keyed by client.
package pending

import (
	"context"
	"sync"
	"time"

	"zkbadge/internal/auth/models"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/requestcontext"
)

// InMemoryStore keeps one pending handshake per client.
type InMemoryStore struct {
	mu      sync.Mutex
	pending map[string]*models.PendingHandshake
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{pending: make(map[string]*models.PendingHandshake)}
}

// Put stores material for clientKey, wiping and replacing any earlier attempt.
func (s *InMemoryStore) Put(_ context.Context, clientKey string, h *models.PendingHandshake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[clientKey]; ok {
		prev.Wipe()
	}
	cp := *h
	cp.Randomness = append([]byte(nil), h.Randomness...)
	cp.EphemeralSeed = append([]byte(nil), h.EphemeralSeed...)
	s.pending[clientKey] = &cp
	return nil
}

// Take removes and returns the material. Expired material is removed and
// reported as sentinel.ErrExpired.
func (s *InMemoryStore) Take(ctx context.Context, clientKey string) (*models.PendingHandshake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.pending[clientKey]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.pending, clientKey)
	if h.IsExpired(requestcontext.Now(ctx)) {
		h.Wipe()
		return nil, sentinel.ErrExpired
	}
	return h, nil
}

func (s *InMemoryStore) Delete(_ context.Context, clientKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.pending[clientKey]; ok {
		h.Wipe()
		delete(s.pending, clientKey)
	}
	return nil
}

// PurgeExpired drops abandoned handshakes and returns how many were removed.
func (s *InMemoryStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, h := range s.pending {
		if h.IsExpired(now) {
			h.Wipe()
			delete(s.pending, key)
			removed++
		}
	}
	return removed
}
