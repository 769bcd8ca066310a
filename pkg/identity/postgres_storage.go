package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements Storage in PostgreSQL. Uniqueness of emails and
// provider identities is enforced by database constraints, so concurrent
// signups for the same email resolve to exactly one account.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a Storage backed by the given connection pool.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

const accountColumns = `id, email, name, auth_method, is_verified, created_at`

func (s *PostgresStorage) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStorage) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *PostgresStorage) Create(ctx context.Context, account *Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.Email, account.Name, account.AuthMethod,
		account.IsVerified, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("identity: create account: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET is_verified = $2 WHERE id = $1`, id, verified)
	if err != nil {
		return fmt.Errorf("identity: set verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStorage) GetByProvider(ctx context.Context, provider, providerUserID string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts a
		JOIN account_providers p ON p.account_id = a.id
		WHERE p.provider = $1 AND p.provider_user_id = $2`,
		provider, providerUserID)
	return scanAccount(row)
}

func (s *PostgresStorage) LinkProvider(ctx context.Context, accountID uuid.UUID, provider, providerUserID string) error {
	// Re-linking the same identity to the same account is a no-op; the same
	// identity on another account is a conflict.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO account_providers (account_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, provider_user_id) DO NOTHING`,
		accountID, provider, providerUserID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("identity: link provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.GetByProvider(ctx, provider, providerUserID)
		if err != nil {
			return fmt.Errorf("identity: link provider: %w", err)
		}
		if existing.ID != accountID {
			return ErrProviderLinked
		}
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.AuthMethod, &a.IsVerified, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("identity: scan account: %w", err)
	}
	return &a, nil
}

var _ Storage = (*PostgresStorage)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
