// Package session binds a connection to its approval session.
//
// The session ID comes out-of-band from the launch URL; there is no
// anonymous mode. After each successful connect (including re-connects)
// the handshake is replayed: init_session goes out, session_initialized
// comes back with the confirmed identity and, possibly, a queued
// transaction request.
package session

import (
	"github.com/rs/zerolog"

	werrors "github.com/nearobot/wallet/internal/errors"
	"github.com/nearobot/wallet/internal/relay"
	"github.com/nearobot/wallet/internal/txn"
)

// Identity is the requester identity confirmed by the relay endpoint.
type Identity struct {
	UserID   string
	Username string
}

// Handshake tracks handshake state for one session binding.
type Handshake struct {
	sessionID   string
	initialized bool
	identity    Identity
	logger      zerolog.Logger
}

// New creates a handshake for the given session ID. A missing ID is a
// fatal, non-retryable session error: the user needs a fresh launch link.
func New(sessionID string, logger zerolog.Logger) (*Handshake, error) {
	if sessionID == "" {
		return nil, werrors.New(
			werrors.KindSession,
			"No session ID found. Please start from the correct link.",
			werrors.ErrMissingSession,
		)
	}
	return &Handshake{
		sessionID: sessionID,
		logger:    logger.With().Str("component", "handshake").Str("session", sessionID).Logger(),
	}, nil
}

// SessionID returns the bound session ID. Immutable for the lifetime of
// the handshake.
func (h *Handshake) SessionID() string { return h.sessionID }

// Initialized reports whether a session_initialized ack has been received
// on the current connection.
func (h *Handshake) Initialized() bool { return h.initialized }

// Identity returns the confirmed requester identity. Zero until initialized.
func (h *Handshake) Identity() Identity { return h.identity }

// InitMessage returns the frame that opens the handshake. It is sent
// immediately after every successful connect.
func (h *Handshake) InitMessage() relay.InitSession {
	return relay.NewInitSession(h.sessionID)
}

// Reset clears connection-scoped state so the handshake can be replayed
// after a reconnect. The session binding itself survives.
func (h *Handshake) Reset() {
	h.initialized = false
}

// HandleInitialized consumes the ack and returns the queued transaction
// request, if the session has one. A handshake carrying no transaction
// returns nil and leaves the approval flow idle.
func (h *Handshake) HandleInitialized(msg relay.SessionInitialized) *txn.Request {
	h.initialized = true
	h.identity = Identity{UserID: msg.UserID, Username: msg.Username}

	if msg.TransactionData == nil {
		h.logger.Info().Str("user", msg.Username).Msg("session initialized, nothing queued")
		return nil
	}

	req := &txn.Request{
		TransactionID: msg.TransactionID,
		SessionID:     h.sessionID,
		Data:          *msg.TransactionData,
		Status:        txn.StatusReceived,
	}
	if req.TransactionID == "" {
		// Pre-queued requests created before the producer generated an ID
		// get one client-side; it is still the sole correlation key.
		req = txn.NewRequest(h.sessionID, *msg.TransactionData)
	}

	h.logger.Info().
		Str("user", msg.Username).
		Str("transaction_id", req.TransactionID).
		Msg("session initialized with queued transaction")
	return req
}

// HandleError surfaces a handshake-phase error ack verbatim. The
// handshake is not retried automatically; the user must refresh.
func (h *Handshake) HandleError(msg relay.ErrorMessage) error {
	h.logger.Warn().Str("message", msg.Message).Msg("handshake rejected")
	return werrors.New(werrors.KindSession, msg.Message, werrors.ErrSessionNotFound)
}
