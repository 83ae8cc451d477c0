package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeadLetter is a frame the relay could not deliver to any connected peer.
type DeadLetter struct {
	ID          string
	SessionID   string
	Message     string
	Error       string
	CreatedAt   int64
	RetryCount  int
	NextRetryAt int64
	ResolvedAt  int64
}

// SaveDeadLetter records an undeliverable frame for later replay.
func (s *Store) SaveDeadLetter(dl *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.CreatedAt == 0 {
		dl.CreatedAt = time.Now().UnixMilli()
	}

	query := `
	INSERT OR REPLACE INTO dead_letters (
		id, session_id, message, error, created_at, retry_count, next_retry_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		dl.ID, dl.SessionID, dl.Message, dl.Error,
		dl.CreatedAt, dl.RetryCount,
		sql.NullInt64{Int64: dl.NextRetryAt, Valid: dl.NextRetryAt != 0},
		sql.NullInt64{Int64: dl.ResolvedAt, Valid: dl.ResolvedAt != 0},
	)

	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

// UnresolvedDeadLetters lists frames still awaiting replay, oldest first.
// An empty sessionID lists every session's.
func (s *Store) UnresolvedDeadLetters(sessionID string) ([]*DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, session_id, message, error, created_at, retry_count, next_retry_at, resolved_at
	FROM dead_letters
	WHERE (? = '' OR session_id = ?) AND resolved_at IS NULL
	ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query, sessionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*DeadLetter
	for rows.Next() {
		dl := &DeadLetter{}
		var nextRetryAt, resolvedAt sql.NullInt64
		if err := rows.Scan(
			&dl.ID, &dl.SessionID, &dl.Message, &dl.Error,
			&dl.CreatedAt, &dl.RetryCount, &nextRetryAt, &resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.NextRetryAt = nextRetryAt.Int64
		dl.ResolvedAt = resolvedAt.Int64
		out = append(out, dl)
	}
	return out, rows.Err()
}

// ResolveDeadLetter marks a frame as successfully replayed.
func (s *Store) ResolveDeadLetter(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE dead_letters SET resolved_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}
	return nil
}
