// Package wallet defines the boundary to the external signing component.
// Nothing in this module touches keys; the collaborator signs and
// broadcasts, this module only relays the payload and the outcome.
package wallet

import (
	"context"
	"errors"

	"github.com/nearobot/wallet/internal/txn"
)

var (
	// ErrNoWallet means no signer is configured for this client.
	ErrNoWallet = errors.New("no wallet configured")
	// ErrUserCancelled means the user cancelled inside the wallet UI
	// (distinct from rejecting in the approval flow).
	ErrUserCancelled = errors.New("cancelled in wallet")
)

// Result is the successful outcome of a sign-and-send call.
type Result struct {
	TxHash string `json:"txHash"`
}

// Wallet signs and broadcasts one transaction. Implementations own their
// own timeout policy; callers pass ctx for cancellation only.
type Wallet interface {
	// AccountID returns the connected wallet address.
	AccountID() string

	// SignAndSend submits the payload verbatim and blocks until the
	// collaborator reports a hash or an error.
	SignAndSend(ctx context.Context, data txn.Data) (Result, error)
}

// Func adapts a plain function to the Wallet interface, for tests and
// small wiring.
type Func struct {
	ID string
	Fn func(ctx context.Context, data txn.Data) (Result, error)
}

func (f Func) AccountID() string { return f.ID }

func (f Func) SignAndSend(ctx context.Context, data txn.Data) (Result, error) {
	if f.Fn == nil {
		return Result{}, ErrNoWallet
	}
	return f.Fn(ctx, data)
}
