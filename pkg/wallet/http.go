package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nearobot/wallet/internal/txn"
)

// HTTPWallet talks to an external signer service over HTTP: the payload
// is POSTed verbatim and the response carries either a transaction hash
// or a short error string.
type HTTPWallet struct {
	accountID string
	endpoint  string
	client    *http.Client
}

// NewHTTPWallet creates a wallet backed by a signer service.
func NewHTTPWallet(accountID, endpoint string, timeout time.Duration) *HTTPWallet {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPWallet{
		accountID: accountID,
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeout},
	}
}

func (w *HTTPWallet) AccountID() string { return w.accountID }

type signRequest struct {
	AccountID       string   `json:"accountId"`
	TransactionData txn.Data `json:"transactionData"`
}

type signResponse struct {
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SignAndSend submits the payload to the signer service. The service's
// own timeout policy applies; client-side the request is bounded by the
// configured HTTP timeout and ctx.
func (w *HTTPWallet) SignAndSend(ctx context.Context, data txn.Data) (Result, error) {
	if w.endpoint == "" {
		return Result{}, ErrNoWallet
	}

	body, err := json.Marshal(signRequest{AccountID: w.accountID, TransactionData: data})
	if err != nil {
		return Result{}, fmt.Errorf("encoding sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("building sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("signer unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("reading signer response: %w", err)
	}

	var sr signResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return Result{}, fmt.Errorf("signer returned status %d", resp.StatusCode)
	}
	if sr.Error != "" {
		return Result{}, fmt.Errorf("%s", sr.Error)
	}
	if resp.StatusCode != http.StatusOK || sr.TxHash == "" {
		return Result{}, fmt.Errorf("signer returned status %d", resp.StatusCode)
	}
	return Result{TxHash: sr.TxHash}, nil
}
