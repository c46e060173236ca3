// Package postgres persists engine snapshots in PostgreSQL so sessions can
// be prewarmed after a process restart instead of re-summarizing history.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextfold/contextfold"
)

// ErrSnapshotNotFound indicates no snapshot is stored for the session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Schema is the DDL for the snapshot table. Callers own migrations; this is
// provided for convenience and is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS contextfold_snapshots (
	session_id TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store reads and writes snapshots through a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on an existing pool. The pool stays owned by the
// caller.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the snapshot table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate snapshots table: %w", err)
	}
	return nil
}

// Save upserts a session's snapshot.
func (s *Store) Save(ctx context.Context, snapshot *contextfold.Snapshot) error {
	if snapshot == nil || snapshot.SessionID == "" {
		return fmt.Errorf("snapshot with session id is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO contextfold_snapshots (session_id, payload, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, snapshot.SessionID, payload); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", snapshot.SessionID, err)
	}
	return nil
}

// Load returns the raw snapshot payload for a session. The bytes are meant
// to be handed to Engine.PrewarmJSON, which validates them.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var payload []byte
	query := `SELECT payload FROM contextfold_snapshots WHERE session_id = $1`

	err := s.pool.QueryRow(ctx, query, sessionID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", sessionID, err)
	}
	return payload, nil
}

// LoadSnapshot returns the decoded snapshot for a session.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (*contextfold.Snapshot, error) {
	payload, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var snapshot contextfold.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for %s: %w", sessionID, err)
	}
	return &snapshot, nil
}

// Delete removes a session's snapshot. Deleting a missing snapshot is not
// an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM contextfold_snapshots WHERE session_id = $1`
	if _, err := s.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("delete snapshot for %s: %w", sessionID, err)
	}
	return nil
}

// UpdatedSince lists session ids whose snapshots changed after the given
// time. Useful for incremental cache warmers.
func (s *Store) UpdatedSince(ctx context.Context, since time.Time) ([]string, error) {
	query := `SELECT session_id FROM contextfold_snapshots WHERE updated_at > $1 ORDER BY updated_at`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list updated snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
