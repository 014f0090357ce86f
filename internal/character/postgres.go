package character

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the characters table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS characters (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    name          TEXT NOT NULL,
    gender        TEXT NOT NULL,
    style         TEXT NOT NULL,
    portrait_ref  TEXT NOT NULL DEFAULT '',
    scenario_hint TEXT NOT NULL DEFAULT '',
    usage_count   INTEGER NOT NULL DEFAULT 0 CHECK (usage_count >= 0),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_used_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_characters_owner ON characters(owner_id);
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

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("character: migrate: %w", err)
	}
	return nil
}

const characterColumns = `id, owner_id, name, gender, style, portrait_ref,
       scenario_hint, usage_count, created_at, last_used_at`

// Create inserts a new character. Returns an error if the ID already exists.
func (s *PostgresStore) Create(ctx context.Context, c *Character) error {
	if err := c.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO characters (
			id, owner_id, name, gender, style, portrait_ref, scenario_hint
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING usage_count, created_at, last_used_at`

	err := s.db.QueryRow(ctx, query,
		c.ID, c.OwnerID, c.Name, c.Gender, c.Style, c.PortraitRef, c.ScenarioHint,
	).Scan(&c.UsageCount, &c.CreatedAt, &c.LastUsedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("character: character with id %q already exists", c.ID)
		}
		return fmt.Errorf("character: create: %w", err)
	}
	return nil
}

// Get retrieves a character by ID for the given owner. Returns (nil, nil)
// if no such character exists for that owner.
func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (*Character, error) {
	const query = `SELECT ` + characterColumns + `
		FROM characters
		WHERE id = $1 AND owner_id = $2`

	var c Character
	err := s.db.QueryRow(ctx, query, id, ownerID).Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Gender, &c.Style, &c.PortraitRef,
		&c.ScenarioHint, &c.UsageCount, &c.CreatedAt, &c.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("character: get %q: %w", id, err)
	}
	return &c, nil
}

// List returns all of the owner's characters, most recently used first.
func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]Character, error) {
	const query = `SELECT ` + characterColumns + `
		FROM characters
		WHERE owner_id = $1
		ORDER BY last_used_at DESC`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("character: list: %w", err)
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		var c Character
		if err := rows.Scan(
			&c.ID, &c.OwnerID, &c.Name, &c.Gender, &c.Style, &c.PortraitRef,
			&c.ScenarioHint, &c.UsageCount, &c.CreatedAt, &c.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("character: list scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("character: list: %w", err)
	}
	return out, nil
}

// Delete removes the owner's character. Deleting a character that does not
// exist for that owner is not an error.
func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	const query = `DELETE FROM characters WHERE id = $1 AND owner_id = $2`
	_, err := s.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("character: delete %q: %w", id, err)
	}
	return nil
}

// MarkUsed increments the character's usage count and stamps the last used
// time. Returns (nil, nil) if no such character exists for that owner.
func (s *PostgresStore) MarkUsed(ctx context.Context, ownerID, id string) (*Character, error) {
	const query = `
		UPDATE characters
		SET usage_count = usage_count + 1, last_used_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + characterColumns

	var c Character
	err := s.db.QueryRow(ctx, query, id, ownerID).Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Gender, &c.Style, &c.PortraitRef,
		&c.ScenarioHint, &c.UsageCount, &c.CreatedAt, &c.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("character: mark used %q: %w", id, err)
	}
	return &c, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
