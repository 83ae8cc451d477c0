package store

import (
	"context"
	"fmt"
	"time"
)

// RunRetention cleans up old data according to retention policies
func (s *Store) RunRetention(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	// Resolved transactions older than 7 days
	sevenDaysAgo := now - (7 * 24 * 60 * 60 * 1000)
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE resolved_at IS NOT NULL AND resolved_at < ?",
		sevenDaysAgo,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old transactions: %w", err)
	}

	// Sessions idle for 24 hours become expired
	oneDayAgo := now - (24 * 60 * 60 * 1000)
	_, err = s.db.ExecContext(ctx,
		"UPDATE sessions SET status = ? WHERE status = ? AND last_seen < ?",
		SessionExpired, SessionActive, oneDayAgo,
	)
	if err != nil {
		return fmt.Errorf("failed to expire idle sessions: %w", err)
	}

	// Expired sessions with no remaining transactions, gone after 7 days.
	// A session keeps its row while any transaction still references it,
	// resolved or not, so the foreign key constraint holds.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = ? AND last_seen < ?
		 AND session_id NOT IN (SELECT session_id FROM transactions)`,
		SessionExpired, sevenDaysAgo,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old sessions: %w", err)
	}

	// Resolved dead letters older than 24 hours
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM dead_letters WHERE resolved_at IS NOT NULL AND resolved_at < ?",
		oneDayAgo,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old dead letters: %w", err)
	}

	return nil
}

// DBSizeBytes returns the database size in bytes
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	err = s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}
