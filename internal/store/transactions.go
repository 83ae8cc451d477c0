package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nearobot/wallet/internal/txn"
)

// Transaction is one persisted transaction request with its outcome.
type Transaction struct {
	TransactionID string
	SessionID     string
	Data          txn.Data
	Status        txn.Status
	TxHash        string
	Error         string
	CreatedAt     int64
	UpdatedAt     int64
	ResolvedAt    int64
}

// SaveTransaction creates or replaces a transaction request.
func (s *Store) SaveTransaction(tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Status == "" {
		tx.Status = txn.StatusReceived
	}
	now := time.Now().UnixMilli()
	if tx.CreatedAt == 0 {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	data, err := json.Marshal(tx.Data)
	if err != nil {
		return fmt.Errorf("failed to encode transaction data: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO transactions (
		transaction_id, session_id, data, status, tx_hash, error,
		created_at, updated_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		tx.TransactionID, tx.SessionID, string(data), string(tx.Status),
		sql.NullString{String: tx.TxHash, Valid: tx.TxHash != ""},
		sql.NullString{String: tx.Error, Valid: tx.Error != ""},
		tx.CreatedAt, tx.UpdatedAt,
		sql.NullInt64{Int64: tx.ResolvedAt, Valid: tx.ResolvedAt != 0},
	)

	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID. Returns nil when not found.
func (s *Store) GetTransaction(transactionID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT transaction_id, session_id, data, status, tx_hash, error,
		created_at, updated_at, resolved_at
	FROM transactions WHERE transaction_id = ?
	`

	return s.scanTransaction(s.db.QueryRow(query, transactionID))
}

// GetQueuedTransaction returns the most recent unresolved transaction for a
// session, or nil when nothing is queued.
func (s *Store) GetQueuedTransaction(sessionID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT transaction_id, session_id, data, status, tx_hash, error,
		created_at, updated_at, resolved_at
	FROM transactions
	WHERE session_id = ? AND resolved_at IS NULL
	ORDER BY created_at DESC LIMIT 1
	`

	return s.scanTransaction(s.db.QueryRow(query, sessionID))
}

// ResolveTransaction records the final outcome of a transaction. Resolving
// an already-resolved transaction is a no-op so re-delivered results stay
// idempotent.
func (s *Store) ResolveTransaction(transactionID string, success bool, txHash, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := txn.StatusConfirmed
	if !success {
		status = txn.StatusFailed
	}

	query := `
	UPDATE transactions
	SET status = ?, tx_hash = ?, error = ?, updated_at = ?, resolved_at = ?
	WHERE transaction_id = ? AND resolved_at IS NULL
	`

	now := time.Now().UnixMilli()
	_, err := s.db.Exec(query,
		string(status),
		sql.NullString{String: txHash, Valid: txHash != ""},
		sql.NullString{String: errMsg, Valid: errMsg != ""},
		now, now, transactionID,
	)

	if err != nil {
		return fmt.Errorf("failed to resolve transaction: %w", err)
	}
	return nil
}

func (s *Store) scanTransaction(row *sql.Row) (*Transaction, error) {
	tx := &Transaction{}
	var data, status string
	var txHash, errMsg sql.NullString
	var resolvedAt sql.NullInt64

	err := row.Scan(
		&tx.TransactionID, &tx.SessionID, &data, &status, &txHash, &errMsg,
		&tx.CreatedAt, &tx.UpdatedAt, &resolvedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &tx.Data); err != nil {
		return nil, fmt.Errorf("failed to decode transaction data: %w", err)
	}
	tx.Status = txn.Status(status)
	tx.TxHash = txHash.String
	tx.Error = errMsg.String
	tx.ResolvedAt = resolvedAt.Int64

	return tx, nil
}
