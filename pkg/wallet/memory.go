package wallet

import (
	"context"
	"sync"

	"github.com/nearobot/wallet/internal/txn"
)

// MemoryWallet is an in-memory wallet for development and tests. It
// records every payload it is asked to sign and returns a scripted
// outcome.
type MemoryWallet struct {
	mu        sync.Mutex
	accountID string
	hash      string
	err       error
	calls     []txn.Data
}

// NewMemoryWallet creates a wallet that answers every call with hash.
func NewMemoryWallet(accountID, hash string) *MemoryWallet {
	return &MemoryWallet{accountID: accountID, hash: hash}
}

// Fail makes subsequent calls return err instead of a hash.
func (m *MemoryWallet) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryWallet) AccountID() string { return m.accountID }

func (m *MemoryWallet) SignAndSend(_ context.Context, data txn.Data) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, data)
	if m.err != nil {
		return Result{}, m.err
	}
	return Result{TxHash: m.hash}, nil
}

// Calls returns a copy of every payload received so far.
func (m *MemoryWallet) Calls() []txn.Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]txn.Data, len(m.calls))
	copy(out, m.calls)
	return out
}
