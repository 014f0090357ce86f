package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the users table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id                    TEXT PRIMARY KEY,
    email                 TEXT NOT NULL UNIQUE,
    first_name            TEXT NOT NULL DEFAULT '',
    last_name             TEXT NOT NULL DEFAULT '',
    password_hash         TEXT NOT NULL DEFAULT '',
    google_id             TEXT NOT NULL DEFAULT '',
    role                  TEXT NOT NULL DEFAULT 'user',
    tier                  TEXT NOT NULL DEFAULT 'free',
    subscription_id       TEXT NOT NULL DEFAULT '',
    subscription_provider TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_users_google_id ON users(google_id) WHERE google_id <> '';
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the users
// table and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("user: migrate: %w", err)
	}
	return nil
}

const userColumns = `id, email, first_name, last_name, password_hash, google_id,
       role, tier, subscription_id, subscription_provider, created_at, updated_at`

// Create inserts a new user. Returns an error if the ID or email already exists.
func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO users (
			id, email, first_name, last_name, password_hash, google_id,
			role, tier, subscription_id, subscription_provider
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		u.ID, normalizeEmail(u.Email), u.FirstName, u.LastName, u.PasswordHash, u.GoogleID,
		defaultRole(u.Role), defaultTier(u.Tier), u.SubscriptionID, u.SubscriptionProvider,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("user: account with email %q already exists", u.Email)
		}
		return fmt.Errorf("user: create: %w", err)
	}
	return nil
}

// Get retrieves a user by ID. Returns (nil, nil) if not found.
func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	return s.getBy(ctx, "id = $1", id)
}

// GetByEmail retrieves a user by email. Returns (nil, nil) if not found.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getBy(ctx, "email = $1", normalizeEmail(email))
}

// GetByGoogleID retrieves a user by Google identity. Returns (nil, nil) if
// not found.
func (s *PostgresStore) GetByGoogleID(ctx context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, nil
	}
	return s.getBy(ctx, "google_id = $1", googleID)
}

func (s *PostgresStore) getBy(ctx context.Context, where string, arg any) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	var u User
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.GoogleID,
		&u.Role, &u.Tier, &u.SubscriptionID, &u.SubscriptionProvider, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("user: get: %w", err)
	}
	return &u, nil
}

// Update replaces an existing user record. Returns an error if the user is
// not found.
func (s *PostgresStore) Update(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	const query = `
		UPDATE users SET
			email = $2, first_name = $3, last_name = $4, password_hash = $5,
			google_id = $6, role = $7, tier = $8, subscription_id = $9,
			subscription_provider = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := s.db.QueryRow(ctx, query,
		u.ID, normalizeEmail(u.Email), u.FirstName, u.LastName, u.PasswordHash,
		u.GoogleID, defaultRole(u.Role), defaultTier(u.Tier), u.SubscriptionID, u.SubscriptionProvider,
	).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("user: user with id %q not found", u.ID)
		}
		return fmt.Errorf("user: update: %w", err)
	}
	return nil
}

// List returns all accounts, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.GoogleID,
			&u.Role, &u.Tier, &u.SubscriptionID, &u.SubscriptionProvider, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("user: list: scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func defaultRole(r Role) Role {
	if r == "" {
		return RoleUser
	}
	return r
}

func defaultTier(t Tier) Tier {
	if t == "" {
		return TierFree
	}
	return t
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
