package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"zkbadge/internal/membership/models"
	"zkbadge/internal/platform/postgres"
	id "zkbadge/pkg/domain"
	"zkbadge/pkg/platform/sentinel"
)

// PostgresStore persists patterns in whitelisted_domains. The unique index on
// lower(pattern) enforces case-insensitive uniqueness.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, d models.WhitelistedDomain) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO whitelisted_domains (id, pattern, created_at) VALUES ($1, $2, $3)`,
		uuid.UUID(d.ID), d.Pattern, d.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, domainID id.DomainID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM whitelisted_domains WHERE id = $1`, uuid.UUID(domainID))
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, domainID id.DomainID) (*models.WhitelistedDomain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pattern, created_at FROM whitelisted_domains WHERE id = $1`, uuid.UUID(domainID))
	return scanDomain(row)
}

func (s *PostgresStore) FindByPattern(ctx context.Context, pattern string) (*models.WhitelistedDomain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pattern, created_at FROM whitelisted_domains WHERE lower(pattern) = lower($1)`, pattern)
	return scanDomain(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]models.WhitelistedDomain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern, created_at FROM whitelisted_domains ORDER BY created_at, pattern`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []models.WhitelistedDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDomain(row scanner) (*models.WhitelistedDomain, error) {
	var (
		raw uuid.UUID
		d   models.WhitelistedDomain
	)
	if err := row.Scan(&raw, &d.Pattern, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	d.ID = id.DomainID(raw)
	return &d, nil
}
