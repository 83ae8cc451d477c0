// Package relayserver is the WebSocket side of the relay: producers (bots)
// create sessions and queue transactions, approvers bind to a session and
// report outcomes, and the hub forwards frames between them.
package relayserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/relay"
	"github.com/nearobot/wallet/internal/store"
	"github.com/nearobot/wallet/internal/txn"
)

var errSendQueueFull = errors.New("peer send queue is full")

// Hub routes frames between producer and approver connections and keeps
// sessions and transactions durable across either side disconnecting.
type Hub struct {
	store  *store.Store
	meter  *metrics.Metrics
	logger zerolog.Logger

	upgrader websocket.Upgrader

	mu        sync.Mutex
	producers map[*peer]struct{}
	approvers map[string]*peer // keyed by session ID
}

// New creates a hub backed by the given store.
func New(st *store.Store, meter *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		store:  st,
		meter:  meter,
		logger: logger.With().Str("component", "relayserver").Logger(),
		upgrader: websocket.Upgrader{
			// Producers and approvers connect from arbitrary origins; auth
			// is the unguessable session ID, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		producers: make(map[*peer]struct{}),
		approvers: make(map[string]*peer),
	}
}

// Handler upgrades HTTP requests to WebSocket connections and serves them
// until the client goes away.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
			return
		}
		p := newPeer(ws, h.logger.With().Str("remote", r.RemoteAddr).Logger(), h.recoverDropped)
		h.meter.ConnectionsTotal.WithLabelValues("unbound").Inc()
		h.serve(p)
	})
}

func (h *Hub) serve(p *peer) {
	defer h.drop(p)

	for {
		_, raw, err := p.ws.ReadMessage()
		if err != nil {
			p.logger.Debug().Err(err).Msg("peer disconnected")
			return
		}
		h.meter.MessagesTotal.WithLabelValues("server_in").Inc()

		msg, err := relay.DecodeClient(raw)
		if err != nil {
			p.logger.Warn().Err(err).Msg("dropping undecodable frame")
			_ = p.Send(relay.NewError("Invalid message format"))
			continue
		}

		h.dispatch(p, msg)
	}
}

func (h *Hub) dispatch(p *peer, msg relay.ClientMessage) {
	switch m := msg.(type) {
	case relay.BotConnect:
		h.handleBotConnect(p)
	case relay.CreateSession:
		h.handleCreateSession(p, m)
	case relay.ProcessTransaction:
		h.handleProcessTransaction(p, m)
	case relay.InitSession:
		h.handleInitSession(p, m)
	case relay.WalletConnected:
		h.handleWalletReport(p, m.SessionID, relay.Ack{Type: relay.TypeWalletConnectionRecv}, m)
	case relay.WalletDisconnected:
		h.handleWalletReport(p, m.SessionID, relay.Ack{Type: relay.TypeWalletDisconnectRecv}, m)
	case relay.TransactionResult:
		h.handleTransactionResult(p, m)
	case relay.Ping:
		_ = p.Send(relay.NewPong())
	case relay.Unknown:
		p.logger.Info().Str("type", m.Type).Msg("ignoring unknown frame type")
	}
}

func (h *Hub) handleBotConnect(p *peer) {
	h.mu.Lock()
	p.producer = true
	h.producers[p] = struct{}{}
	h.mu.Unlock()

	h.meter.ConnectionsTotal.WithLabelValues("producer").Inc()
	p.logger.Info().Msg("producer connected")

	h.replayDeadLetters(p)
}

func (h *Hub) handleCreateSession(p *peer, m relay.CreateSession) {
	if m.SessionID == "" {
		_ = p.Send(relay.NewError("create_session requires a sessionId"))
		return
	}

	sess := &store.Session{
		SessionID: m.SessionID,
		UserID:    m.UserID,
		ChatID:    m.ChatID,
		Username:  m.Username,
	}
	if err := h.store.SaveSession(sess); err != nil {
		h.logger.Error().Err(err).Str("session_id", m.SessionID).Msg("session save failed")
		_ = p.Send(relay.NewError("Could not create session"))
		return
	}

	if m.TransactionData != nil {
		if err := h.queueTransaction(m.SessionID, "", *m.TransactionData); err != nil {
			_ = p.Send(relay.NewError("Could not queue transaction"))
			return
		}
	}

	p.logger.Info().Str("session_id", m.SessionID).Msg("session created")
	_ = p.Send(relay.SessionCreated{Type: relay.TypeSessionCreated, SessionID: m.SessionID})
}

func (h *Hub) handleProcessTransaction(p *peer, m relay.ProcessTransaction) {
	sess, err := h.store.GetSession(m.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("session lookup failed")
		_ = p.Send(relay.NewError("Could not process transaction"))
		return
	}
	if sess == nil {
		_ = p.Send(relay.NewError("Session not found"))
		return
	}

	id := m.TransactionID
	if id == "" {
		id = "tx-" + uuid.New().String()
	}
	if err := h.queueTransaction(m.SessionID, id, m.TransactionData); err != nil {
		_ = p.Send(relay.NewError("Could not queue transaction"))
		return
	}

	// Forward to the bound approver, if any. Otherwise the transaction
	// waits in the store and rides the next handshake.
	h.mu.Lock()
	approver := h.approvers[m.SessionID]
	h.mu.Unlock()

	if approver != nil {
		out := relay.ProcessTransaction{
			Type:            relay.TypeProcessTransaction,
			TransactionID:   id,
			TransactionData: m.TransactionData,
		}
		if err := approver.Send(out); err != nil {
			p.logger.Warn().Err(err).Str("session_id", m.SessionID).Msg("forward to approver failed")
		}
	}
}

func (h *Hub) queueTransaction(sessionID, id string, data txn.Data) error {
	if id == "" {
		id = "tx-" + uuid.New().String()
	}
	tx := &store.Transaction{
		TransactionID: id,
		SessionID:     sessionID,
		Data:          data,
	}
	if err := h.store.SaveTransaction(tx); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("transaction save failed")
		return err
	}
	h.logger.Info().
		Str("session_id", sessionID).
		Str("transaction_id", id).
		Msg("transaction queued")
	return nil
}

func (h *Hub) handleInitSession(p *peer, m relay.InitSession) {
	sess, err := h.store.GetSession(m.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("session lookup failed")
		_ = p.Send(relay.NewError("Could not initialize session"))
		return
	}
	if sess == nil || sess.Status != store.SessionActive {
		_ = p.Send(relay.NewError("Session not found or expired. Please start from the correct link."))
		return
	}

	h.mu.Lock()
	prev := h.approvers[m.SessionID]
	h.approvers[m.SessionID] = p
	p.sessionID = m.SessionID
	h.mu.Unlock()

	if prev != nil && prev != p {
		// A reconnect replaces the stale binding.
		prev.close()
	} else {
		h.meter.SessionsActive.Inc()
	}

	_ = h.store.TouchSession(m.SessionID)

	reply := relay.SessionInitialized{
		Type:     relay.TypeSessionInitialized,
		UserID:   sess.UserID,
		Username: sess.Username,
	}
	queued, err := h.store.GetQueuedTransaction(m.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("queued transaction lookup failed")
	} else if queued != nil {
		reply.TransactionID = queued.TransactionID
		reply.TransactionData = &queued.Data
	}

	p.logger.Info().Str("session_id", m.SessionID).Bool("queued", reply.TransactionData != nil).
		Msg("approver bound to session")
	_ = p.Send(reply)
}

func (h *Hub) handleWalletReport(p *peer, sessionID string, ack relay.Ack, frame any) {
	if sessionID != "" {
		_ = h.store.TouchSession(sessionID)
	}
	_ = p.Send(ack)
	h.broadcastToProducers(sessionID, frame, false)
}

func (h *Hub) handleTransactionResult(p *peer, m relay.TransactionResult) {
	if m.TransactionID == "" {
		_ = p.Send(relay.NewError("transaction_result requires a transactionId"))
		return
	}

	if err := h.store.ResolveTransaction(m.TransactionID, m.Success, m.TxHash, m.Error); err != nil {
		h.logger.Error().Err(err).Str("transaction_id", m.TransactionID).Msg("resolve failed")
	}
	outcome := "failed"
	if m.Success {
		outcome = "confirmed"
	}
	h.meter.RecordOutcome(outcome)

	// Ack the approver first so its side of the exchange completes even if
	// no producer is listening right now.
	_ = p.Send(relay.Ack{Type: relay.TypeTransactionResultRecv})

	h.broadcastToProducers(m.SessionID, m, true)
}

// broadcastToProducers forwards a frame to every connected producer.
// When deadLetter is set and nobody receives it, the frame is captured
// for replay on the next producer connect.
func (h *Hub) broadcastToProducers(sessionID string, frame any, deadLetter bool) {
	h.mu.Lock()
	targets := make([]*peer, 0, len(h.producers))
	for p := range h.producers {
		targets = append(targets, p)
	}
	h.mu.Unlock()

	delivered := 0
	for _, p := range targets {
		if err := p.Send(frame); err == nil {
			delivered++
		}
	}

	if delivered == 0 && deadLetter {
		h.deadLetter(sessionID, frame, "no producer connected")
	}
}

func (h *Hub) deadLetter(sessionID string, frame any, reason string) {
	raw, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error().Err(err).Msg("dead letter encode failed")
		return
	}
	dl := &store.DeadLetter{
		SessionID: sessionID,
		Message:   string(raw),
		Error:     reason,
	}
	if err := h.store.SaveDeadLetter(dl); err != nil {
		h.logger.Error().Err(err).Msg("dead letter save failed")
		return
	}
	h.logger.Warn().Str("session_id", sessionID).Str("reason", reason).Msg("result dead-lettered")
}

// recoverDropped captures result frames a peer accepted but could not
// write, so a producer dying mid-send still sees the outcome on its next
// connect. Replayed raw frames are re-parsed to recover their session.
func (h *Hub) recoverDropped(v any) {
	switch m := v.(type) {
	case relay.TransactionResult:
		h.deadLetter(m.SessionID, m, "peer write failed")
	case json.RawMessage:
		msg, err := relay.DecodeClient(m)
		if err != nil {
			return
		}
		if res, ok := msg.(relay.TransactionResult); ok {
			h.deadLetter(res.SessionID, m, "peer write failed")
		}
	}
}

// replayDeadLetters pushes frames that never reached a producer to a
// freshly connected one.
func (h *Hub) replayDeadLetters(p *peer) {
	letters, err := h.store.UnresolvedDeadLetters("")
	if err != nil {
		h.logger.Error().Err(err).Msg("dead letter listing failed")
		return
	}

	for _, dl := range letters {
		if err := p.Send(json.RawMessage(dl.Message)); err != nil {
			return
		}
		if err := h.store.ResolveDeadLetter(dl.ID); err != nil {
			h.logger.Error().Err(err).Str("id", dl.ID).Msg("dead letter resolve failed")
		}
	}
	if len(letters) > 0 {
		p.logger.Info().Int("count", len(letters)).Msg("replayed dead letters")
	}
}

func (h *Hub) drop(p *peer) {
	p.close()

	h.mu.Lock()
	delete(h.producers, p)
	if p.sessionID != "" && h.approvers[p.sessionID] == p {
		delete(h.approvers, p.sessionID)
		h.meter.SessionsActive.Dec()
	}
	h.mu.Unlock()
}
