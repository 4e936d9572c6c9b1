// Package postgres opens the database/sql pool used by the durable stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"zkbadge/internal/platform/config"
)

// Open returns nil, nil when no URL is configured so callers fall back to
// in-memory stores.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Schema creates the membership tables. Uniqueness rules live in the indexes
// so concurrent writers are serialised by the database.
const Schema = `
CREATE TABLE IF NOT EXISTS whitelisted_domains (
    id         UUID PRIMARY KEY,
    pattern    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS whitelisted_domains_pattern_lower
    ON whitelisted_domains (lower(pattern));

CREATE TABLE IF NOT EXISTS credentials (
    id               UUID PRIMARY KEY,
    holder_address   TEXT NOT NULL,
    email            TEXT NOT NULL,
    name             TEXT NOT NULL,
    program          TEXT NOT NULL,
    student_number   TEXT NOT NULL,
    status           TEXT NOT NULL,
    tx_digest        TEXT NOT NULL DEFAULT '',
    ledger_badge_id  TEXT NOT NULL DEFAULT '',
    confirmed        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS credentials_active_holder
    ON credentials (lower(holder_address)) WHERE status <> 'revoked';
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
