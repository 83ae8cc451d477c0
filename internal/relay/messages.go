// Package relay defines the wire protocol between approver clients,
// producers (bots) and the relay endpoint. Every frame is a JSON object
// with a "type" discriminator; each direction has a closed set of types.
//
// The correlation field is named "transactionId" everywhere. Earlier
// client variants used "txId" in places; this package is the single
// authority on the wire contract.
package relay

import (
	"encoding/json"
	"time"

	"github.com/nearobot/wallet/internal/txn"
)

// Message type discriminators, client → server.
const (
	TypeInitSession        = "init_session"
	TypeWalletConnected    = "wallet_connected"
	TypeWalletDisconnected = "wallet_disconnected"
	TypeTransactionResult  = "transaction_result"
	TypePing               = "ping"

	// Producer-side types.
	TypeBotConnect         = "bot_connect"
	TypeCreateSession      = "create_session"
	TypeProcessTransaction = "process_transaction" // also server → approver
)

// Message type discriminators, server → client.
const (
	TypeSessionInitialized     = "session_initialized"
	TypeSessionCreated         = "session_created"
	TypeWalletConnectionRecv   = "wallet_connection_received"
	TypeTransactionResultRecv  = "transaction_result_received"
	TypeWalletDisconnectRecv   = "wallet_disconnection_received"
	TypeError                  = "error"
	TypePong                   = "pong"
)

// --- Client → server ---

// InitSession binds the connection to a session.
type InitSession struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func NewInitSession(sessionID string) InitSession {
	return InitSession{Type: TypeInitSession, SessionID: sessionID}
}

// WalletConnected reports the wallet address to the producer.
type WalletConnected struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	WalletID  string `json:"walletId"`
	TxnLink   string `json:"txnLink,omitempty"`
}

func NewWalletConnected(sessionID, walletID, txnLink string) WalletConnected {
	return WalletConnected{Type: TypeWalletConnected, SessionID: sessionID, WalletID: walletID, TxnLink: txnLink}
}

// WalletDisconnected reports a wallet disconnection.
type WalletDisconnected struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

func NewWalletDisconnected(sessionID, reason string) WalletDisconnected {
	return WalletDisconnected{Type: TypeWalletDisconnected, SessionID: sessionID, Reason: reason}
}

// TransactionResult reports the outcome of one transaction request.
// Exactly one of TxHash or Error is set.
type TransactionResult struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
	SessionID     string `json:"sessionId"`
	Success       bool   `json:"success"`
	TxHash        string `json:"txHash,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func NewTransactionResult(sessionID, transactionID string, success bool, txHash, errMsg string) TransactionResult {
	r := TransactionResult{
		Type:          TypeTransactionResult,
		TransactionID: transactionID,
		SessionID:     sessionID,
		Success:       success,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if success {
		r.TxHash = txHash
	} else {
		r.Error = errMsg
	}
	return r
}

// Ping is the keepalive probe.
type Ping struct {
	Type string `json:"type"`
}

func NewPing() Ping { return Ping{Type: TypePing} }

// --- Producer → server ---

// BotConnect marks the connection as a producer.
type BotConnect struct {
	Type string `json:"type"`
}

func NewBotConnect() BotConnect { return BotConnect{Type: TypeBotConnect} }

// CreateSession creates an approval session, optionally with a queued
// transaction.
type CreateSession struct {
	Type            string    `json:"type"`
	SessionID       string    `json:"sessionId"`
	UserID          string    `json:"userId,omitempty"`
	ChatID          string    `json:"chatId,omitempty"`
	Username        string    `json:"username,omitempty"`
	TransactionData *txn.Data `json:"transactionData,omitempty"`
}

// ProcessTransaction carries a new request to approve. Sent producer →
// server and forwarded server → approver unchanged.
type ProcessTransaction struct {
	Type            string   `json:"type"`
	SessionID       string   `json:"sessionId,omitempty"`
	TransactionID   string   `json:"transactionId"`
	TransactionData txn.Data `json:"transactionData"`
}

// --- Server → client ---

// SessionInitialized is the handshake acknowledgement. TransactionData is
// non-nil only when the session has a queued request.
type SessionInitialized struct {
	Type            string    `json:"type"`
	UserID          string    `json:"userId"`
	Username        string    `json:"username"`
	TransactionID   string    `json:"transactionId,omitempty"`
	TransactionData *txn.Data `json:"transactionData"`
}

// SessionCreated acknowledges a producer's create_session.
type SessionCreated struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Ack acknowledges a client → server report. Type is one of the
// *_received discriminators.
type Ack struct {
	Type string `json:"type"`
}

// ErrorMessage carries a fatal or recoverable error as free text.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// Pong is the keepalive acknowledgement.
type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong { return Pong{Type: TypePong} }

// Unknown preserves a frame whose type is not part of the contract.
// Consumers log it and move on; unknown types are never a hard error.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}
