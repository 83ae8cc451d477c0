package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session statuses.
const (
	SessionActive  = "active"
	SessionExpired = "expired"
)

// Session is one producer-created approval session.
type Session struct {
	SessionID string
	UserID    string
	ChatID    string
	Username  string
	Status    string
	CreatedAt int64
	LastSeen  int64
}

// SaveSession creates or replaces a session.
func (s *Store) SaveSession(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Status == "" {
		sess.Status = SessionActive
	}
	if sess.CreatedAt == 0 {
		sess.CreatedAt = time.Now().UnixMilli()
	}
	if sess.LastSeen == 0 {
		sess.LastSeen = time.Now().UnixMilli()
	}

	query := `
	INSERT OR REPLACE INTO sessions (
		session_id, user_id, chat_id, username, status, created_at, last_seen
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		sess.SessionID,
		sql.NullString{String: sess.UserID, Valid: sess.UserID != ""},
		sql.NullString{String: sess.ChatID, Valid: sess.ChatID != ""},
		sql.NullString{String: sess.Username, Valid: sess.Username != ""},
		sess.Status, sess.CreatedAt, sess.LastSeen,
	)

	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := &Session{}
	var userID, chatID, username sql.NullString

	query := `
	SELECT session_id, user_id, chat_id, username, status, created_at, last_seen
	FROM sessions WHERE session_id = ?
	`

	err := s.db.QueryRow(query, sessionID).Scan(
		&sess.SessionID, &userID, &chatID, &username,
		&sess.Status, &sess.CreatedAt, &sess.LastSeen,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess.UserID = userID.String
	sess.ChatID = chatID.String
	sess.Username = username.String

	return sess, nil
}

// TouchSession updates last_seen.
func (s *Store) TouchSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE sessions SET last_seen = ? WHERE session_id = ?`
	result, err := s.db.Exec(query, time.Now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	return nil
}

// SetSessionStatus moves a session between active and expired.
func (s *Store) SetSessionStatus(sessionID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE session_id = ?`, status, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	return nil
}
