// Package trace persists per-turn, per-stage observability spans to
// Postgres — an ambient enrichment beyond what the conversation's
// short-TTL session cache carries, adapted from the teacher's
// internal/trace/store.go (same go:embed migrations + pgx stdlib
// driver pattern), generalized from per-call spans to per-turn spans.
package trace

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps a Postgres connection pool for writing and querying
// traces.
type Store struct {
	db *sql.DB
}

// Open connects to connStr, pings it, and applies any pending
// migrations before returning.
func Open(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INT NOT NULL)`); err != nil {
		return fmt.Errorf("trace: migrate: ensure schema_version: %w", err)
	}

	var applied int
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&applied)
	if applied > 0 {
		return nil
	}

	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("trace: migrate: read migrations: %w", err)
	}
	for _, e := range entries {
		b, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("trace: migrate: read %s: %w", e.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("trace: migrate: apply %s: %w", e.Name(), err)
		}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (1)`)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// CreateSession inserts a new traced session row.
func (s *Store) CreateSession(ctx context.Context, id, language string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, language, created_at) VALUES ($1, $2, $3)`,
		id, language, time.Now())
	return err
}

// EndSession marks a session as finished.
func (s *Store) EndSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

// CreateTurn inserts a new turn row and returns its id.
func (s *Store) CreateTurn(ctx context.Context, sessionID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO turns (session_id, started_at) VALUES ($1, $2) RETURNING id`,
		sessionID, time.Now()).Scan(&id)
	return id, err
}

// UpdateTurn records the final transcript/reply/latency for a turn.
func (s *Store) UpdateTurn(ctx context.Context, turnID int64, transcript, reply string, totalMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE turns SET transcript = $1, reply = $2, ended_at = $3, total_ms = $4 WHERE id = $5`,
		transcript, reply, time.Now(), totalMs, turnID)
	return err
}

// CreateSpan records one stage's duration (and optional error) within
// a turn.
func (s *Store) CreateSpan(ctx context.Context, turnID int64, stage string, durationMs int64, spanErr string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spans (turn_id, stage, duration_ms, error) VALUES ($1, $2, $3, $4)`,
		turnID, stage, durationMs, nullIfEmpty(spanErr))
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SessionSummary is the shape returned by ListSessions/GetSession.
type SessionSummary struct {
	ID        string     `json:"id"`
	Language  string     `json:"language"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	TurnCount int        `json:"turn_count"`
}

// ListSessions returns the most recently created sessions, newest
// first, up to limit.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.language, s.created_at, s.ended_at, COUNT(t.id)
		FROM sessions s
		LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id, s.language, s.created_at, s.ended_at
		ORDER BY s.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("trace: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Language, &sum.CreatedAt, &sum.EndedAt, &sum.TurnCount); err != nil {
			return nil, fmt.Errorf("trace: scan session: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetSession fetches one session's summary by id.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionSummary, error) {
	var sum SessionSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.language, s.created_at, s.ended_at, COUNT(t.id)
		FROM sessions s
		LEFT JOIN turns t ON t.session_id = s.id
		WHERE s.id = $1
		GROUP BY s.id, s.language, s.created_at, s.ended_at`, id).
		Scan(&sum.ID, &sum.Language, &sum.CreatedAt, &sum.EndedAt, &sum.TurnCount)
	if err != nil {
		return nil, fmt.Errorf("trace: get session: %w", err)
	}
	return &sum, nil
}
