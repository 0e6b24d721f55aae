package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the credentials table. Email and phone are unique when set.
const Schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id                 TEXT PRIMARY KEY,
	email              TEXT,
	phone              TEXT,
	name               TEXT NOT NULL DEFAULT '',
	password_hash      TEXT NOT NULL,
	role               TEXT NOT NULL DEFAULT '',
	active             BOOLEAN NOT NULL DEFAULT TRUE,
	verified           BOOLEAN NOT NULL DEFAULT FALSE,
	step_up_required   BOOLEAN NOT NULL DEFAULT FALSE,
	failed_login_count INTEGER NOT NULL DEFAULT 0,
	lockout_until      TIMESTAMPTZ,
	last_login_at      TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS credentials_email_key ON credentials (email) WHERE email IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS credentials_phone_key ON credentials (phone) WHERE phone IS NOT NULL;
`

const selectColumns = `
	id, email, phone, name, password_hash, role, active, verified, step_up_required,
	failed_login_count, lockout_until, last_login_at, created_at, updated_at`

// PostgresStore is a [Store] backed by a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO credentials (
			id, email, phone, name, password_hash, role, active, verified, step_up_required,
			failed_login_count, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, 0, $10, $10)`

	_, err := s.db.Exec(ctx, q,
		c.ID, c.Email, c.Phone, c.Name, c.PasswordHash, c.Role,
		c.Active, c.Verified, c.StepUpRequired, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Credential, error) {
	return s.getOne(ctx, `SELECT`+selectColumns+` FROM credentials WHERE id = $1`, id)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	return s.getOne(ctx, `SELECT`+selectColumns+` FROM credentials WHERE email = $1`, email)
}

func (s *PostgresStore) GetByPhone(ctx context.Context, phone string) (*Credential, error) {
	return s.getOne(ctx, `SELECT`+selectColumns+` FROM credentials WHERE phone = $1`, phone)
}

func (s *PostgresStore) getOne(ctx context.Context, q string, arg string) (*Credential, error) {
	var (
		c                  Credential
		email, phone       *string
		lockout, lastLogin *time.Time
	)
	err := s.db.QueryRow(ctx, q, arg).Scan(
		&c.ID,
		&email,
		&phone,
		&c.Name,
		&c.PasswordHash,
		&c.Role,
		&c.Active,
		&c.Verified,
		&c.StepUpRequired,
		&c.FailedLoginCount,
		&lockout,
		&lastLogin,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if email != nil {
		c.Email = *email
	}
	if phone != nil {
		c.Phone = *phone
	}
	if lockout != nil {
		c.LockoutUntil = *lockout
	}
	if lastLogin != nil {
		c.LastLoginAt = *lastLogin
	}
	return &c, nil
}

func (s *PostgresStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockout time.Duration, now time.Time) (FailureResult, error) {
	const q = `
		UPDATE credentials
		SET failed_login_count = CASE
				WHEN $2::int > 0 AND failed_login_count + 1 >= $2::int THEN 0
				ELSE failed_login_count + 1
			END,
			lockout_until = CASE
				WHEN $2::int > 0 AND failed_login_count + 1 >= $2::int THEN $3::timestamptz
				ELSE lockout_until
			END,
			updated_at = $4
		WHERE id = $1
		RETURNING failed_login_count, lockout_until, COALESCE(lockout_until = $3::timestamptz, FALSE)`

	until := now.Add(lockout).Truncate(time.Microsecond)
	var (
		count  int
		lu     *time.Time
		locked bool
	)
	err := s.db.QueryRow(ctx, q, id, threshold, until, now).Scan(&count, &lu, &locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FailureResult{}, ErrNotFound
		}
		return FailureResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res := FailureResult{Count: count}
	if locked {
		res.Count = threshold
		res.Locked = true
		res.LockoutUntil = *lu
	}
	return res, nil
}

func (s *PostgresStore) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, `
		UPDATE credentials
		SET failed_login_count = 0, lockout_until = NULL, last_login_at = $2, updated_at = $2
		WHERE id = $1`, id, now)
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, `UPDATE credentials SET verified = TRUE, updated_at = $2 WHERE id = $1`, id, now)
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string, clearLockout bool, now time.Time) error {
	if clearLockout {
		return s.exec(ctx, `
			UPDATE credentials
			SET password_hash = $2, failed_login_count = 0, lockout_until = NULL, updated_at = $3
			WHERE id = $1`, id, hash, now)
	}
	return s.exec(ctx, `UPDATE credentials SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, now)
}

func (s *PostgresStore) Deactivate(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, `UPDATE credentials SET active = FALSE, updated_at = $2 WHERE id = $1`, id, now)
}

func (s *PostgresStore) exec(ctx context.Context, q string, args ...any) error {
	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
