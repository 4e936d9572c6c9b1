//go:build integration

package credential_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zkbadge/internal/membership/models"
	"zkbadge/internal/membership/store/credential"
	id "zkbadge/pkg/domain"
	"zkbadge/pkg/platform/sentinel"
	"zkbadge/pkg/testutil/containers"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *credential.PostgresStore
	now      time.Time
}

func TestPostgresIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = credential.NewPostgres(s.postgres.DB)
}

func (s *PostgresIntegrationSuite) SetupTest() {
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "credentials"))
}

func (s *PostgresIntegrationSuite) credential(holder id.Address) models.Credential {
	return models.Credential{
		ID:            id.NewBadgeID(),
		HolderAddress: holder,
		Email:         "alice@university.edu",
		Name:          "Alice",
		Program:       "Physics",
		StudentNumber: "S-1",
		Status:        models.StatusPending,
		CreatedAt:     s.now,
		UpdatedAt:     s.now,
	}
}

func holderAddress(n int) id.Address {
	return id.Address(fmt.Sprintf("0x%064x", n))
}

// TestConcurrentCreateHasOneWinner relies on the partial unique index to
// serialise registrations for the same holder.
func (s *PostgresIntegrationSuite) TestConcurrentCreateHasOneWinner() {
	ctx := context.Background()
	const goroutines = 20
	var (
		wg        sync.WaitGroup
		created   atomic.Int32
		conflicts atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.credential(holderAddress(1)))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresIntegrationSuite) TestRevokedHolderCannotRegisterAgain() {
	ctx := context.Background()
	first := s.credential(holderAddress(2))
	s.Require().NoError(s.store.Create(ctx, first))

	_, err := s.store.Update(ctx, first.ID, func(c *models.Credential) error {
		c.ApplyStatus(models.StatusRevoked, s.now)
		return nil
	})
	s.Require().NoError(err)

	s.ErrorIs(s.store.Create(ctx, s.credential(holderAddress(2))), ErrHolderRevoked)
	_, err = s.store.FindActiveByHolder(ctx, holderAddress(2))
	s.ErrorIs(err, sentinel.ErrNotFound)

	latest, err := s.store.FindLatestByHolder(ctx, holderAddress(2))
	s.Require().NoError(err)
	s.Equal(first.ID, latest.ID)
	s.Equal(models.StatusRevoked, latest.Status)
}

func (s *PostgresIntegrationSuite) TestUpdateRoundTripsLedgerFields() {
	ctx := context.Background()
	cred := s.credential(holderAddress(3))
	s.Require().NoError(s.store.Create(ctx, cred))

	_, err := s.store.Update(ctx, cred.ID, func(c *models.Credential) error {
		c.ApplyLedgerConfirmation("0xbadge", "digest-1", s.now)
		return nil
	})
	s.Require().NoError(err)

	got, err := s.store.FindByID(ctx, cred.ID)
	s.Require().NoError(err)
	s.True(got.Confirmed)
	s.Equal("0xbadge", got.LedgerBadgeID)
	s.Equal("digest-1", got.TxDigest)

	unconfirmed, err := s.store.ListUnconfirmed(ctx)
	s.Require().NoError(err)
	s.Empty(unconfirmed)
}

func (s *PostgresIntegrationSuite) TestDeleteMissing() {
	err := s.store.Delete(context.Background(), id.NewBadgeID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
