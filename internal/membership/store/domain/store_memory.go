// Package domain stores the whitelisted email domain patterns.
package domain

import (
	"context"
	"sort"
	"strings"
	"sync"

	"zkbadge/internal/membership/models"
	id "zkbadge/pkg/domain"
	"zkbadge/pkg/platform/sentinel"
)

// InMemoryStore keeps patterns in a map keyed by id. Pattern uniqueness is
// checked under the write lock.
type InMemoryStore struct {
	mu      sync.RWMutex
	domains map[id.DomainID]models.WhitelistedDomain
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{domains: make(map[id.DomainID]models.WhitelistedDomain)}
}

// Insert returns sentinel.ErrConflict when the pattern already exists.
func (s *InMemoryStore) Insert(_ context.Context, d models.WhitelistedDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.domains {
		if strings.EqualFold(existing.Pattern, d.Pattern) {
			return sentinel.ErrConflict
		}
	}
	s.domains[d.ID] = d
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, domainID id.DomainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[domainID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.domains, domainID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, domainID id.DomainID) (*models.WhitelistedDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[domainID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &d, nil
}

func (s *InMemoryStore) FindByPattern(_ context.Context, pattern string) (*models.WhitelistedDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.domains {
		if strings.EqualFold(d.Pattern, pattern) {
			return &d, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// List returns patterns ordered by creation time, then pattern.
func (s *InMemoryStore) List(_ context.Context) ([]models.WhitelistedDomain, error) {
	s.mu.RLock()
	out := make([]models.WhitelistedDomain, 0, len(s.domains))
	for _, d := range s.domains {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out, nil
}
