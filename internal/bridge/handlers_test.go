package bridge

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearobot/wallet/internal/retry"
	"github.com/nearobot/wallet/internal/store"
	"github.com/nearobot/wallet/internal/txn"
)

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "bridge.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if cfg.WalletBaseURL == "" {
		cfg.WalletBaseURL = "http://localhost:3000"
	}
	srv := NewServer(cfg, st, nil, zerolog.Nop())
	// Tests should not sit through real backoff delays.
	srv.handlers.retryCfg = retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, Backoff: retry.Exponential}
	return srv, st
}

func doJSON(t *testing.T, srv *Server, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := srv.App().Test(req, 10_000)
	require.NoError(t, err)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()

	payload := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}
	return res, payload
}

func seedSession(t *testing.T, st *store.Store, sessionID string, data *txn.Data) {
	t.Helper()
	require.NoError(t, st.SaveSession(&store.Session{SessionID: sessionID, Username: "maria"}))
	if data != nil {
		require.NoError(t, st.SaveTransaction(&store.Transaction{
			TransactionID: "tx-1",
			SessionID:     sessionID,
			Data:          *data,
		}))
	}
}

func TestSessionTransaction_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})

	res, payload := doJSON(t, srv, http.MethodGet, "/session/nope/transaction", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "session_not_found", payload["type"])
}

func TestSessionTransaction_NothingQueued(t *testing.T) {
	srv, st := newTestServer(t, ServerConfig{})
	seedSession(t, st, "sess-1", nil)

	res, payload := doJSON(t, srv, http.MethodGet, "/session/sess-1/transaction", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "no_transaction", payload["type"])
}

func TestSessionTransaction_ReturnsQueued(t *testing.T) {
	srv, st := newTestServer(t, ServerConfig{})
	seedSession(t, st, "sess-1", &txn.Data{Amount: "2500000000000000000000000", Receiver: "alice.test"})

	res, payload := doJSON(t, srv, http.MethodGet, "/session/sess-1/transaction", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "tx-1", payload["transactionId"])

	data, ok := payload["transactionData"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice.test", data["receiver"])
}

func TestSendLink_MissingSessionID(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})

	res, payload := doJSON(t, srv, http.MethodGet, "/api/send", "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, payload["example"], "sessionid=")
}

func TestSendLink_BuildsWalletURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/sess-1/transaction", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SessionTransactionResponse{
			SessionID:     "sess-1",
			Status:        "active",
			TransactionID: "tx-1",
			TransactionData: &txn.Data{
				Amount:   "2500000000000000000000000",
				Receiver: "alice.test",
			},
		})
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, ServerConfig{
		UpstreamURL:   upstream.URL,
		WalletBaseURL: "http://wallet.local",
	})

	res, payload := doJSON(t, srv, http.MethodGet, "/api/send?sessionid=sess-1", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "http://wallet.local?sessionId=sess-1", payload["walletUrl"])
	assert.Equal(t, "active", payload["sessionStatus"])
}

func TestSendLink_UpstreamNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, ServerConfig{UpstreamURL: upstream.URL})

	res, payload := doJSON(t, srv, http.MethodPost, "/api/send", `{"sessionId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "session_not_found", payload["type"])
}

func TestSendLink_UpstreamUnreachableIs503(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{UpstreamURL: "http://127.0.0.1:1"})

	res, payload := doJSON(t, srv, http.MethodGet, "/api/send?sessionid=sess-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "relay_unavailable", payload["type"])
}

func TestAuthMiddleware_RejectsBadKey(t *testing.T) {
	srv, st := newTestServer(t, ServerConfig{AuthConfig: AuthConfig{APIKey: "secret"}})
	seedSession(t, st, "sess-1", nil)

	req := httptest.NewRequest(http.MethodGet, "/session/sess-1/transaction", nil)
	res, err := srv.App().Test(req, 10_000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/session/sess-1/transaction", nil)
	req.Header.Set("Authorization", "Bearer secret")
	res, err = srv.App().Test(req, 10_000)
	require.NoError(t, err)
	assert.NotEqual(t, http.StatusUnauthorized, res.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res, err = srv.App().Test(req, 10_000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode, "probes are exempt from auth")
}
