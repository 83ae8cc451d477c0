package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearobot/wallet/internal/correlate"
	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/relay"
	"github.com/nearobot/wallet/internal/txn"
	"github.com/nearobot/wallet/pkg/wallet"
)

type captureSender struct {
	sent []any
	err  error
}

func (s *captureSender) Send(v any) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, v)
	return nil
}

func newTestMachine(t *testing.T, w wallet.Wallet) (*Machine, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	corr := correlate.New("sess-1", sender, metrics.New(), zerolog.Nop())
	return New(w, corr, metrics.New(), zerolog.Nop()), sender
}

func transferRequest() *txn.Request {
	return &txn.Request{
		TransactionID: "tx-abc",
		SessionID:     "sess-1",
		Data:          txn.Data{Amount: "2500000000000000000000000", Receiver: "alice.test"},
		Status:        txn.StatusReceived,
	}
}

func offerAndBegin(t *testing.T, m *Machine, req *txn.Request) {
	t.Helper()
	require.NoError(t, m.correlator.Offer(req))
	m.Begin(req)
	require.Equal(t, StateAwaitingApproval, m.State())
}

func lastResult(t *testing.T, sender *captureSender) relay.TransactionResult {
	t.Helper()
	require.NotEmpty(t, sender.sent)
	res, ok := sender.sent[len(sender.sent)-1].(relay.TransactionResult)
	require.True(t, ok, "last frame should be a transaction_result")
	return res
}

func TestApproveSignsAndReportsHash(t *testing.T) {
	w := wallet.NewMemoryWallet("approver.test", "8x4hash")
	m, sender := newTestMachine(t, w)
	req := transferRequest()
	offerAndBegin(t, m, req)

	m.Approve(context.Background())

	assert.Equal(t, StateResolved, m.State())
	require.Len(t, w.Calls(), 1)
	assert.Equal(t, "alice.test", w.Calls()[0].Receiver)

	res := lastResult(t, sender)
	assert.Equal(t, "tx-abc", res.TransactionID)
	assert.True(t, res.Success)
	assert.Equal(t, "8x4hash", res.TxHash)
	assert.Empty(t, res.Error)
}

func TestRejectReportsFixedReasonWithoutWalletCall(t *testing.T) {
	w := wallet.NewMemoryWallet("approver.test", "unused")
	m, sender := newTestMachine(t, w)
	offerAndBegin(t, m, transferRequest())

	m.Reject()

	assert.Equal(t, StateResolved, m.State())
	assert.Empty(t, w.Calls())

	res := lastResult(t, sender)
	assert.False(t, res.Success)
	assert.Equal(t, RejectedByUser, res.Error)
	assert.Empty(t, res.TxHash)
}

func TestWalletFailureReportsShortError(t *testing.T) {
	w := wallet.NewMemoryWallet("approver.test", "unused")
	w.Fail(errors.New("rpc unreachable"))
	m, sender := newTestMachine(t, w)
	offerAndBegin(t, m, transferRequest())

	m.Approve(context.Background())

	res := lastResult(t, sender)
	assert.False(t, res.Success)
	assert.Equal(t, "rpc unreachable", res.Error)
}

func TestSecondDecisionIsNoOp(t *testing.T) {
	w := wallet.NewMemoryWallet("approver.test", "8x4hash")
	m, sender := newTestMachine(t, w)
	offerAndBegin(t, m, transferRequest())

	m.Reject()
	m.Reject()
	m.Approve(context.Background())

	assert.Empty(t, w.Calls())
	assert.Len(t, sender.sent, 1, "exactly one result frame")
	assert.Equal(t, RejectedByUser, lastResult(t, sender).Error)
}

func TestDecisionBeforeBeginIsNoOp(t *testing.T) {
	m, sender := newTestMachine(t, wallet.NewMemoryWallet("approver.test", "h"))

	m.Approve(context.Background())
	m.Reject()

	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, sender.sent)
}

func TestExpireReportsTimeout(t *testing.T) {
	m, sender := newTestMachine(t, wallet.NewMemoryWallet("approver.test", "h"))
	offerAndBegin(t, m, transferRequest())

	m.Expire()
	m.Approve(context.Background())

	res := lastResult(t, sender)
	assert.False(t, res.Success)
	assert.Equal(t, TimedOut, res.Error)
	assert.Len(t, sender.sent, 1)
}
