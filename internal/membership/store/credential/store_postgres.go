package credential

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

const credentialColumns = `id, holder_address, email, name, program, student_number, status,
	tx_digest, ledger_badge_id, confirmed, created_at, updated_at`

// PostgresStore persists credentials. The partial unique index on
// lower(holder_address) for non-revoked rows is the final arbiter between
// concurrent registrations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c models.Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var revoked bool
	err = tx.QueryRowContext(ctx,
		`SELECT bool_and(status = 'revoked') FROM credentials WHERE lower(holder_address) = lower($1) HAVING count(*) > 0`,
		c.HolderAddress.String()).Scan(&revoked)
	switch {
	case err == nil && revoked:
		return ErrHolderRevoked
	case err == nil:
		return sentinel.ErrConflict
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check holder: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(c.ID), c.HolderAddress.String(), c.Email, c.Name, c.Program, c.StudentNumber,
		string(c.Status), c.TxDigest, c.LedgerBadgeID, c.Confirmed, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("commit credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, badgeID id.BadgeID) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, uuid.UUID(badgeID))
	return scanCredential(row)
}

func (s *PostgresStore) FindActiveByHolder(ctx context.Context, holder id.Address) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials
		WHERE lower(holder_address) = lower($1) AND status <> 'revoked'`, holder.String())
	return scanCredential(row)
}

// FindLatestByHolder returns the holder's newest credential whatever its
// status.
func (s *PostgresStore) FindLatestByHolder(ctx context.Context, holder id.Address) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials
		WHERE lower(holder_address) = lower($1) ORDER BY created_at DESC, id DESC LIMIT 1`, holder.String())
	return scanCredential(row)
}

// Update locks the row, applies fn and writes the mutable columns back.
func (s *PostgresStore) Update(ctx context.Context, badgeID id.BadgeID, fn func(*models.Credential) error) (*models.Credential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanCredential(tx.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1 FOR UPDATE`, uuid.UUID(badgeID)))
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE credentials
		SET status = $2, tx_digest = $3, ledger_badge_id = $4, confirmed = $5, updated_at = $6
		WHERE id = $1`,
		uuid.UUID(badgeID), string(c.Status), c.TxDigest, c.LedgerBadgeID, c.Confirmed, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credential update: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Delete(ctx context.Context, badgeID id.BadgeID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, uuid.UUID(badgeID))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Credential, error) {
	return s.query(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY created_at, id`)
}

func (s *PostgresStore) ListUnconfirmed(ctx context.Context) ([]models.Credential, error) {
	return s.query(ctx, `SELECT `+credentialColumns+` FROM credentials
		WHERE NOT confirmed AND status <> 'revoked' ORDER BY created_at, id`)
}

func (s *PostgresStore) query(ctx context.Context, q string) ([]models.Credential, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*models.Credential, error) {
	var (
		c      models.Credential
		raw    uuid.UUID
		holder string
		status string
	)
	err := row.Scan(&raw, &holder, &c.Email, &c.Name, &c.Program, &c.StudentNumber, &status,
		&c.TxDigest, &c.LedgerBadgeID, &c.Confirmed, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	c.ID = id.BadgeID(raw)
	c.HolderAddress = id.Address(holder)
	c.Status = models.Status(status)
	return &c, nil
}
