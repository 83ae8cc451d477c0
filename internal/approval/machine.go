// Package approval drives one transaction request through human approval
// or rejection.
//
// A Machine is single-shot: it is created when the correlator accepts a
// request and is terminal once resolved; the next request gets a fresh
// instance. Approve and Reject are logical no-ops after the machine has
// left awaiting_approval, so double clicks and duplicate deliveries
// cannot produce a second result.
package approval

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nearobot/wallet/internal/correlate"
	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/txn"
	"github.com/nearobot/wallet/pkg/wallet"
)

// State is the approval lifecycle state.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingApproval State = "awaiting_approval"
	StateApproving        State = "approving"
	StateRejecting        State = "rejecting"
	StateResolved         State = "resolved"
)

// RejectedByUser is the fixed reason reported when the human rejects.
// Producers rely on it to tell a human "no" from a technical failure.
const RejectedByUser = "Transaction rejected by user"

// TimedOut is reported when a configured approval deadline passes.
const TimedOut = "Approval timed out"

// Machine is the approval state machine for exactly one request.
type Machine struct {
	state      State
	req        *txn.Request
	wallet     wallet.Wallet
	correlator *correlate.Correlator
	logger     zerolog.Logger
	meter      *metrics.Metrics
	arrivedAt  time.Time
}

// New creates a machine in the idle state.
func New(w wallet.Wallet, c *correlate.Correlator, meter *metrics.Metrics, logger zerolog.Logger) *Machine {
	return &Machine{
		state:      StateIdle,
		wallet:     w,
		correlator: c,
		logger:     logger.With().Str("component", "approval").Logger(),
		meter:      meter,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Request returns the request being decided, or nil while idle.
func (m *Machine) Request() *txn.Request { return m.req }

// Begin moves idle → awaiting_approval for a request the correlator has
// already accepted.
func (m *Machine) Begin(req *txn.Request) {
	if m.state != StateIdle {
		m.logger.Warn().Str("state", string(m.state)).Msg("begin ignored: machine already started")
		return
	}
	m.req = req
	m.state = StateAwaitingApproval
	m.arrivedAt = time.Now()
	m.logger.Info().
		Str("transaction_id", req.TransactionID).
		Str("receiver", req.Data.TargetAccount()).
		Msg("awaiting human approval")
}

// Approve handles the human approval: the untouched payload goes to the
// wallet collaborator, and only after that call fully returns is the
// result resolved. Calling Approve outside awaiting_approval is a no-op.
func (m *Machine) Approve(ctx context.Context) {
	if m.state != StateAwaitingApproval {
		m.logger.Debug().Str("state", string(m.state)).Msg("approve ignored")
		return
	}

	m.state = StateApproving
	m.req.Status = txn.StatusApproved
	m.meter.ApprovalDuration.Observe(time.Since(m.arrivedAt).Seconds())
	m.logger.Info().Str("transaction_id", m.req.TransactionID).Msg("approved, invoking wallet")

	m.req.Status = txn.StatusSubmitted
	res, err := m.wallet.SignAndSend(ctx, m.req.Data)

	m.state = StateResolved
	if err != nil {
		// Collaborator errors reach the producer as a short human string,
		// never a stack trace.
		msg := shortError(err)
		m.logger.Warn().Err(err).Str("transaction_id", m.req.TransactionID).Msg("wallet call failed")
		m.resolve(correlate.Outcome{Success: false, Error: msg})
		return
	}

	m.logger.Info().
		Str("transaction_id", m.req.TransactionID).
		Str("tx_hash", res.TxHash).
		Msg("transaction signed and sent")
	m.resolve(correlate.Outcome{Success: true, TxHash: res.TxHash})
}

// Reject handles the human rejection. No wallet call is made and the fixed
// RejectedByUser reason is reported. A no-op outside awaiting_approval.
func (m *Machine) Reject() {
	if m.state != StateAwaitingApproval {
		m.logger.Debug().Str("state", string(m.state)).Msg("reject ignored")
		return
	}

	m.state = StateRejecting
	m.req.Status = txn.StatusRejected
	m.meter.ApprovalDuration.Observe(time.Since(m.arrivedAt).Seconds())
	m.logger.Info().Str("transaction_id", m.req.TransactionID).Msg("rejected by user")

	m.state = StateResolved
	m.resolve(correlate.Outcome{Success: false, Error: RejectedByUser})
}

// Expire resolves the request as failed after a configured approval
// deadline. A no-op outside awaiting_approval.
func (m *Machine) Expire() {
	if m.state != StateAwaitingApproval {
		return
	}
	m.state = StateResolved
	m.req.Status = txn.StatusFailed
	m.logger.Warn().Str("transaction_id", m.req.TransactionID).Msg("approval deadline passed")
	m.resolve(correlate.Outcome{Success: false, Error: TimedOut})
}

func (m *Machine) resolve(out correlate.Outcome) {
	if err := m.correlator.Resolve(m.req.TransactionID, out); err != nil {
		// Delivery failures are retried by the correlator after
		// reconnect; unknown-ID errors are already logged there.
		m.logger.Debug().Err(err).Msg("resolve did not complete")
	}
}

// shortError trims an error to a string fit for the wire and the UI.
func shortError(err error) string {
	const maxLen = 200
	s := err.Error()
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
