package relayserver

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/relay"
	"github.com/nearobot/wallet/internal/store"
	"github.com/nearobot/wallet/internal/txn"
)

type testHub struct {
	hub   *Hub
	store *store.Store
	srv   *httptest.Server
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "relay.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub := New(st, metrics.New(), zerolog.Nop())
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	return &testHub{hub: hub, store: st, srv: srv}
}

func (h *testHub) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, raw, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", wantType)
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == wantType {
			return raw
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

func createSession(t *testing.T, producer *websocket.Conn, sessionID string, data *txn.Data) {
	t.Helper()
	send(t, producer, relay.CreateSession{
		Type:            relay.TypeCreateSession,
		SessionID:       sessionID,
		UserID:          "42",
		Username:        "maria",
		TransactionData: data,
	})
	raw := readUntil(t, producer, relay.TypeSessionCreated)
	var created relay.SessionCreated
	require.NoError(t, json.Unmarshal(raw, &created))
	require.Equal(t, sessionID, created.SessionID)
}

func TestSessionHandshakeDeliversQueuedTransaction(t *testing.T) {
	h := newTestHub(t)

	producer := h.dial(t)
	send(t, producer, relay.NewBotConnect())
	createSession(t, producer, "sess-1", &txn.Data{
		Amount:   "2500000000000000000000000",
		Receiver: "alice.test",
		Purpose:  "coffee",
	})

	approver := h.dial(t)
	send(t, approver, relay.NewInitSession("sess-1"))

	raw := readUntil(t, approver, relay.TypeSessionInitialized)
	var init relay.SessionInitialized
	require.NoError(t, json.Unmarshal(raw, &init))
	assert.Equal(t, "maria", init.Username)
	require.NotNil(t, init.TransactionData)
	assert.Equal(t, "alice.test", init.TransactionData.Receiver)
	assert.NotEmpty(t, init.TransactionID)
}

func TestInitSessionUnknownSessionGetsError(t *testing.T) {
	h := newTestHub(t)

	approver := h.dial(t)
	send(t, approver, relay.NewInitSession("no-such-session"))

	raw := readUntil(t, approver, relay.TypeError)
	var errMsg relay.ErrorMessage
	require.NoError(t, json.Unmarshal(raw, &errMsg))
	assert.Contains(t, errMsg.Message, "Session not found")
}

func TestResultReachesProducerAndResolvesStore(t *testing.T) {
	h := newTestHub(t)

	producer := h.dial(t)
	send(t, producer, relay.NewBotConnect())
	createSession(t, producer, "sess-1", nil)

	send(t, producer, relay.ProcessTransaction{
		Type:            relay.TypeProcessTransaction,
		SessionID:       "sess-1",
		TransactionID:   "tx-9",
		TransactionData: txn.Data{Amount: "1000000000000000000000000", Receiver: "bob.test"},
	})

	approver := h.dial(t)
	send(t, approver, relay.NewInitSession("sess-1"))
	readUntil(t, approver, relay.TypeSessionInitialized)

	send(t, approver, relay.NewTransactionResult("sess-1", "tx-9", true, "HASH9", ""))

	readUntil(t, approver, relay.TypeTransactionResultRecv)

	raw := readUntil(t, producer, relay.TypeTransactionResult)
	var res relay.TransactionResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "tx-9", res.TransactionID)
	assert.True(t, res.Success)

	waitForResolved(t, h.store, "tx-9")
}

func waitForResolved(t *testing.T, st *store.Store, transactionID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tx, err := st.GetTransaction(transactionID)
		require.NoError(t, err)
		if tx != nil && tx.ResolvedAt != 0 {
			assert.Equal(t, txn.StatusConfirmed, tx.Status)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("transaction never resolved in store")
}

func TestQueuedTransactionForwardedToBoundApprover(t *testing.T) {
	h := newTestHub(t)

	producer := h.dial(t)
	send(t, producer, relay.NewBotConnect())
	createSession(t, producer, "sess-1", nil)

	approver := h.dial(t)
	send(t, approver, relay.NewInitSession("sess-1"))
	readUntil(t, approver, relay.TypeSessionInitialized)

	send(t, producer, relay.ProcessTransaction{
		Type:            relay.TypeProcessTransaction,
		SessionID:       "sess-1",
		TransactionData: txn.Data{Amount: "1", Receiver: "carol.test"},
	})

	raw := readUntil(t, approver, relay.TypeProcessTransaction)
	var fwd relay.ProcessTransaction
	require.NoError(t, json.Unmarshal(raw, &fwd))
	assert.Equal(t, "carol.test", fwd.TransactionData.Receiver)
	assert.NotEmpty(t, fwd.TransactionID, "hub assigns an ID when the producer omits one")
}

func TestResultWithoutProducerIsReplayedLater(t *testing.T) {
	h := newTestHub(t)

	// Session exists but no producer is connected when the result lands.
	producer := h.dial(t)
	send(t, producer, relay.NewBotConnect())
	createSession(t, producer, "sess-1", nil)
	send(t, producer, relay.ProcessTransaction{
		Type:            relay.TypeProcessTransaction,
		SessionID:       "sess-1",
		TransactionID:   "tx-dl",
		TransactionData: txn.Data{Amount: "1", Receiver: "a.test"},
	})

	approver := h.dial(t)
	send(t, approver, relay.NewInitSession("sess-1"))
	readUntil(t, approver, relay.TypeSessionInitialized)

	producer.Close()
	waitForNoProducers(t, h)

	send(t, approver, relay.NewTransactionResult("sess-1", "tx-dl", false, "", "Transaction rejected by user"))
	readUntil(t, approver, relay.TypeTransactionResultRecv)

	waitForDeadLetter(t, h.store)

	// A new producer connection replays the captured result.
	replacement := h.dial(t)
	send(t, replacement, relay.NewBotConnect())

	raw := readUntil(t, replacement, relay.TypeTransactionResult)
	var res relay.TransactionResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "tx-dl", res.TransactionID)
	assert.False(t, res.Success)
}

// waitForNoProducers blocks until the hub has noticed the closed producer.
func waitForNoProducers(t *testing.T, h *testHub) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.hub.mu.Lock()
		n := len(h.hub.producers)
		h.hub.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("hub never dropped the closed producer")
}

func waitForDeadLetter(t *testing.T, st *store.Store) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		letters, err := st.UnresolvedDeadLetters("")
		require.NoError(t, err)
		if len(letters) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("result was never dead-lettered")
}

func TestDroppedResultIsDeadLettered(t *testing.T) {
	h := newTestHub(t)

	h.hub.recoverDropped(relay.NewTransactionResult("sess-7", "tx-7", false, "", "Transaction rejected by user"))

	letters, err := h.store.UnresolvedDeadLetters("sess-7")
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Message, "tx-7")
	assert.Equal(t, "peer write failed", letters[0].Error)

	// Raw replay frames carry their session inside; they are recovered too.
	h.hub.recoverDropped(json.RawMessage(letters[0].Message))
	letters, err = h.store.UnresolvedDeadLetters("sess-7")
	require.NoError(t, err)
	assert.Len(t, letters, 2)
}

func TestPingPong(t *testing.T) {
	h := newTestHub(t)

	ws := h.dial(t)
	send(t, ws, relay.NewPing())
	readUntil(t, ws, relay.TypePong)
}
