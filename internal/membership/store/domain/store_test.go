package domain

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"zkbadge/internal/membership/models"
	id "zkbadge/pkg/domain"
	"zkbadge/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) domain(pattern string, offset time.Duration) models.WhitelistedDomain {
	return models.WhitelistedDomain{ID: id.NewDomainID(), Pattern: pattern, CreatedAt: s.now.Add(offset)}
}

func (s *InMemoryStoreSuite) TestInsertRejectsCaseInsensitiveDuplicate() {
	s.Require().NoError(s.store.Insert(s.ctx, s.domain("@university.edu", 0)))
	err := s.store.Insert(s.ctx, s.domain("@University.EDU", time.Second))
	s.ErrorIs(err, sentinel.ErrConflict)

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *InMemoryStoreSuite) TestFindAndDelete() {
	d := s.domain("@university.edu", 0)
	s.Require().NoError(s.store.Insert(s.ctx, d))

	found, err := s.store.FindByPattern(s.ctx, "@UNIVERSITY.edu")
	s.Require().NoError(err)
	s.Equal(d.ID, found.ID)

	s.Require().NoError(s.store.Delete(s.ctx, d.ID))
	_, err = s.store.FindByID(s.ctx, d.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, d.ID), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListOrdersByCreation() {
	s.Require().NoError(s.store.Insert(s.ctx, s.domain("@b.edu", time.Minute)))
	s.Require().NoError(s.store.Insert(s.ctx, s.domain("@a.edu", 2*time.Minute)))
	s.Require().NoError(s.store.Insert(s.ctx, s.domain("@c.edu", 0)))

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"@c.edu", "@b.edu", "@a.edu"}, []string{all[0].Pattern, all[1].Pattern, all[2].Pattern})
}

type PostgresStoreSuite struct {
	suite.Suite
	mock  sqlmock.Sqlmock
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.mock = mock
	s.store = NewPostgres(db)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *PostgresStoreSuite) TestInsert() {
	d := models.WhitelistedDomain{ID: id.NewDomainID(), Pattern: "@university.edu", CreatedAt: time.Now()}

	s.Run("success", func() {
		s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO whitelisted_domains`)).
			WithArgs(sqlmock.AnyArg(), d.Pattern, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		s.NoError(s.store.Insert(s.ctx, d))
	})

	s.Run("unique violation is a conflict", func() {
		s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO whitelisted_domains`)).
			WillReturnError(&pq.Error{Code: "23505"})
		s.ErrorIs(s.store.Insert(s.ctx, d), sentinel.ErrConflict)
	})

	s.Run("other errors are wrapped", func() {
		s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO whitelisted_domains`)).
			WillReturnError(errors.New("connection reset"))
		err := s.store.Insert(s.ctx, d)
		s.Error(err)
		s.NotErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *PostgresStoreSuite) TestDeleteMissing() {
	s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM whitelisted_domains`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.ErrorIs(s.store.Delete(s.ctx, id.NewDomainID()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindByPattern() {
	domainID := uuid.New()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("found", func() {
		s.mock.ExpectQuery(regexp.QuoteMeta(`WHERE lower(pattern) = lower($1)`)).
			WithArgs("@University.edu").
			WillReturnRows(sqlmock.NewRows([]string{"id", "pattern", "created_at"}).
				AddRow(domainID.String(), "@university.edu", created))
		d, err := s.store.FindByPattern(s.ctx, "@University.edu")
		s.Require().NoError(err)
		s.Equal(id.DomainID(domainID), d.ID)
		s.Equal("@university.edu", d.Pattern)
	})

	s.Run("missing", func() {
		s.mock.ExpectQuery(regexp.QuoteMeta(`WHERE lower(pattern) = lower($1)`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "pattern", "created_at"}))
		_, err := s.store.FindByPattern(s.ctx, "@nowhere.edu")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestList() {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, pattern, created_at FROM whitelisted_domains ORDER BY`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pattern", "created_at"}).
			AddRow(uuid.NewString(), "@university.edu", created).
			AddRow(uuid.NewString(), "@gradschool.university.edu", created.Add(time.Second)))

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}
