// Package credential stores membership badges. Both implementations enforce
// at most one non-revoked credential per holder address atomically.
package credential

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"zkbadge/internal/membership/models"
	id "zkbadge/pkg/domain"
	"zkbadge/pkg/platform/sentinel"
)

// ErrHolderRevoked is returned by Create when the holder's credential was
// revoked. Revocation is terminal for the address.
var ErrHolderRevoked = errors.New("holder credential revoked")

// InMemoryStore serialises writes behind one mutex, which also serialises
// registrations per holder.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[id.BadgeID]models.Credential
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[id.BadgeID]models.Credential)}
}

// Create inserts c unless the holder already owns a credential. It returns
// sentinel.ErrConflict for an active one and ErrHolderRevoked for a revoked
// one.
func (s *InMemoryStore) Create(_ context.Context, c models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.credentials {
		if !strings.EqualFold(existing.HolderAddress.String(), c.HolderAddress.String()) {
			continue
		}
		if existing.Status == models.StatusRevoked {
			return ErrHolderRevoked
		}
		return sentinel.ErrConflict
	}
	s.credentials[c.ID] = c
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, badgeID id.BadgeID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[badgeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

// FindActiveByHolder returns the holder's non-revoked credential.
func (s *InMemoryStore) FindActiveByHolder(_ context.Context, holder id.Address) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.credentials {
		if c.Status.Active() && strings.EqualFold(c.HolderAddress.String(), holder.String()) {
			return &c, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindLatestByHolder returns the holder's newest credential, revoked ones
// included.
func (s *InMemoryStore) FindLatestByHolder(_ context.Context, holder id.Address) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Credential
	for _, c := range s.credentials {
		if !strings.EqualFold(c.HolderAddress.String(), holder.String()) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			c := c
			latest = &c
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest, nil
}

// Update applies fn to a copy of the credential and stores the result only
// when fn succeeds.
func (s *InMemoryStore) Update(_ context.Context, badgeID id.BadgeID, fn func(*models.Credential) error) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[badgeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := fn(&c); err != nil {
		return nil, err
	}
	s.credentials[badgeID] = c
	return &c, nil
}

// Delete removes a credential. It exists to roll back an optimistic
// registration the ledger refused outright.
func (s *InMemoryStore) Delete(_ context.Context, badgeID id.BadgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[badgeID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.credentials, badgeID)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]models.Credential, error) {
	return s.collect(func(models.Credential) bool { return true }), nil
}

// ListUnconfirmed returns non-revoked credentials the ledger has not
// confirmed yet.
func (s *InMemoryStore) ListUnconfirmed(_ context.Context) ([]models.Credential, error) {
	return s.collect(func(c models.Credential) bool {
		return !c.Confirmed && c.Status != models.StatusRevoked
	}), nil
}

func (s *InMemoryStore) collect(keep func(models.Credential) bool) []models.Credential {
	s.mu.RLock()
	out := make([]models.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		if keep(c) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
