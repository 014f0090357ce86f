package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the usage_counters table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_counters (
    user_id            TEXT PRIMARY KEY,
    conversation_count INTEGER NOT NULL DEFAULT 0,
    image_count        INTEGER NOT NULL DEFAULT 0,
    tts_count          INTEGER NOT NULL DEFAULT 0,
    period_start       TIMESTAMPTZ NOT NULL DEFAULT now()
);
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
		return fmt.Errorf("usage: migrate: %w", err)
	}
	return nil
}

// Get retrieves a user's counter record. Returns (nil, nil) if the user has
// no record yet.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Record, error) {
	const query = `
		SELECT user_id, conversation_count, image_count, tts_count, period_start
		FROM usage_counters
		WHERE user_id = $1`

	var rec Record
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&rec.UserID, &rec.Conversation, &rec.Image, &rec.TTS, &rec.PeriodStart,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("usage: get %q: %w", userID, err)
	}
	return &rec, nil
}

// Increment adds one to a metric counter, creating the record if needed, and
// returns the updated record.
func (s *PostgresStore) Increment(ctx context.Context, userID string, metric Metric, periodStart time.Time) (*Record, error) {
	col, err := metricColumn(metric)
	if err != nil {
		return nil, err
	}

	// col comes from the fixed metricColumn table, never from input.
	query := fmt.Sprintf(`
		INSERT INTO usage_counters (user_id, %[1]s, period_start)
		VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE SET %[1]s = usage_counters.%[1]s + 1
		RETURNING user_id, conversation_count, image_count, tts_count, period_start`, col)

	var rec Record
	err = s.db.QueryRow(ctx, query, userID, periodStart).Scan(
		&rec.UserID, &rec.Conversation, &rec.Image, &rec.TTS, &rec.PeriodStart,
	)
	if err != nil {
		return nil, fmt.Errorf("usage: increment %s for %q: %w", metric, userID, err)
	}
	return &rec, nil
}

// Reset zeroes all counters and moves the period start, guarded by a
// compare-and-swap on the stored period start so concurrent resets collapse
// into one.
func (s *PostgresStore) Reset(ctx context.Context, userID string, from, newStart time.Time) (bool, error) {
	const query = `
		UPDATE usage_counters
		SET conversation_count = 0, image_count = 0, tts_count = 0, period_start = $3
		WHERE user_id = $1 AND period_start = $2`

	tag, err := s.db.Exec(ctx, query, userID, from, newStart)
	if err != nil {
		return false, fmt.Errorf("usage: reset %q: %w", userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func metricColumn(m Metric) (string, error) {
	switch m {
	case MetricConversation:
		return "conversation_count", nil
	case MetricImage:
		return "image_count", nil
	case MetricTTS:
		return "tts_count", nil
	}
	return "", fmt.Errorf("usage: unknown metric %q", m)
}
