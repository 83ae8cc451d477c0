// Package correlate tracks the single in-flight transaction request per
// connection and matches it to its result by transaction ID.
package correlate

import (
	"github.com/rs/zerolog"

	werrors "github.com/nearobot/wallet/internal/errors"
	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/relay"
	"github.com/nearobot/wallet/internal/txn"
)

// resolvedCapacity bounds the duplicate-suppression window. Requests are
// sequential, so a small window is plenty.
const resolvedCapacity = 128

// Sender writes one frame to the relay endpoint.
type Sender interface {
	Send(v any) error
}

// Outcome is the definitive result of one transaction request. Exactly
// one of TxHash or Error is meaningful, selected by Success.
type Outcome struct {
	Success bool
	TxHash  string
	Error   string
}

// Correlator enforces the at-most-one-active-request rule and guarantees
// each accepted request produces exactly one transaction_result frame.
type Correlator struct {
	sessionID string
	sender    Sender
	logger    zerolog.Logger
	meter     *metrics.Metrics

	pending  *txn.Request
	outcome  *Outcome // recorded but possibly not yet delivered
	resolved *resolvedSet
}

// New creates a correlator bound to one session.
func New(sessionID string, sender Sender, meter *metrics.Metrics, logger zerolog.Logger) *Correlator {
	return &Correlator{
		sessionID: sessionID,
		sender:    sender,
		logger:    logger.With().Str("component", "correlator").Str("session", sessionID).Logger(),
		meter:     meter,
		resolved:  newResolvedSet(resolvedCapacity),
	}
}

// Offer admits a new request. A second request while one is pending is
// rejected with ErrRequestPending and the pending request is untouched:
// overwriting would lose track of what the human is looking at.
func (c *Correlator) Offer(req *txn.Request) error {
	if req == nil || req.TransactionID == "" {
		return werrors.New(werrors.KindProtocol, "transaction request has no ID", nil)
	}
	if c.resolved.Contains(req.TransactionID) {
		c.logger.Debug().Str("transaction_id", req.TransactionID).Msg("duplicate request for resolved transaction, ignoring")
		return werrors.ErrAlreadyResolved
	}
	if c.pending != nil {
		c.logger.Warn().
			Str("pending_id", c.pending.TransactionID).
			Str("rejected_id", req.TransactionID).
			Msg("request rejected: another transaction is awaiting approval")
		return werrors.ErrRequestPending
	}

	req.Status = txn.StatusReceived
	c.pending = req
	c.logger.Info().Str("transaction_id", req.TransactionID).Msg("transaction request accepted")
	return nil
}

// Pending returns the in-flight request, or nil.
func (c *Correlator) Pending() *txn.Request { return c.pending }

// Resolve records the outcome for transactionID and sends exactly one
// transaction_result frame. It is idempotent per ID: resolving an
// already-resolved ID is a no-op, and an unknown ID is a reported error,
// never a crash. If the send fails the outcome stays recorded and
// FlushUnsent delivers it after the next reconnect.
func (c *Correlator) Resolve(transactionID string, outcome Outcome) error {
	if c.resolved.Contains(transactionID) {
		c.logger.Debug().Str("transaction_id", transactionID).Msg("already resolved, ignoring duplicate")
		return nil
	}
	if c.pending == nil || c.pending.TransactionID != transactionID {
		c.logger.Warn().Str("transaction_id", transactionID).Msg("resolve for unknown transaction")
		c.meter.RecordError("correlator", "unknown_transaction")
		return werrors.ErrUnknownTransaction
	}
	if c.outcome != nil {
		// An outcome is already recorded but still owed to the relay. The
		// first decision stands; just try delivery again.
		c.logger.Debug().Str("transaction_id", transactionID).Msg("outcome already recorded, retrying delivery")
		return c.deliver()
	}

	c.outcome = &outcome
	if outcome.Success {
		c.pending.Status = txn.StatusConfirmed
	} else {
		c.pending.Status = txn.StatusFailed
	}

	return c.deliver()
}

// FlushUnsent re-sends a recorded outcome whose delivery failed, typically
// right after a reconnect handshake. A no-op when nothing is owed.
func (c *Correlator) FlushUnsent() error {
	if c.pending == nil || c.outcome == nil {
		return nil
	}
	c.logger.Info().Str("transaction_id", c.pending.TransactionID).Msg("re-sending undelivered transaction result")
	return c.deliver()
}

func (c *Correlator) deliver() error {
	req, out := c.pending, c.outcome
	msg := relay.NewTransactionResult(c.sessionID, req.TransactionID, out.Success, out.TxHash, out.Error)

	if err := c.sender.Send(msg); err != nil {
		c.logger.Warn().Err(err).
			Str("transaction_id", req.TransactionID).
			Msg("result delivery failed, will retry after reconnect")
		return err
	}

	c.resolved.Add(req.TransactionID)
	c.pending = nil
	c.outcome = nil

	outcomeLabel := "failed"
	if out.Success {
		outcomeLabel = "confirmed"
	}
	c.meter.RecordOutcome(outcomeLabel)
	c.logger.Info().
		Str("transaction_id", req.TransactionID).
		Bool("success", out.Success).
		Msg("transaction result sent")
	return nil
}
