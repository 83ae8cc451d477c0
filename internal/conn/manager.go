// Package conn owns the persistent WebSocket connection to the relay
// endpoint: dialing, loss detection, bounded linear-backoff reconnects
// and keepalive probes.
//
// All inbound traffic and lifecycle changes surface as Events on a single
// channel so the consumer can process them sequentially. Outbound sends
// are serialized internally and fail fast while the connection is not open.
package conn

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	werrors "github.com/nearobot/wallet/internal/errors"
	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/relay"
	"github.com/nearobot/wallet/internal/retry"
)

// Phase is the connection lifecycle state.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseOpen
	PhaseClosedRetrying
	PhaseClosedFatal
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosedRetrying:
		return "closed-retrying"
	case PhaseClosedFatal:
		return "closed-fatal"
	}
	return "unknown"
}

// EventKind discriminates connection events.
type EventKind int

const (
	// EventOpen fires after each successful dial, including re-dials.
	EventOpen EventKind = iota
	// EventFrame carries one raw inbound frame.
	EventFrame
	// EventClosed fires when the connection drops and a retry is scheduled.
	EventClosed
	// EventFatal fires once when retries are exhausted. No further events follow.
	EventFatal
)

// Event is one occurrence on the connection, delivered in order.
type Event struct {
	Kind EventKind
	Raw  []byte
	Err  error
}

// Config holds connection manager configuration.
type Config struct {
	// Endpoint is the relay WebSocket URL, e.g. "ws://localhost:3001/ws".
	Endpoint string

	// BaseDelay seeds the reconnect backoff: attempt n waits n × BaseDelay.
	BaseDelay time.Duration

	// MaxAttempts bounds consecutive failed reconnects before giving up.
	MaxAttempts int

	// KeepaliveInterval is the ping cadence while open.
	KeepaliveInterval time.Duration

	// HandshakeTimeout bounds a single dial.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:          endpoint,
		BaseDelay:         2 * time.Second,
		MaxAttempts:       3,
		KeepaliveInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Manager owns one persistent connection.
type Manager struct {
	cfg    Config
	logger zerolog.Logger
	meter  *metrics.Metrics

	phase   atomic.Int32
	retries atomic.Int32

	writeMu sync.Mutex
	ws      *websocket.Conn

	events chan Event
	stopCh chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// New creates a connection manager. Run must be called to start it.
func New(cfg Config, meter *metrics.Metrics, logger zerolog.Logger) *Manager {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = 30 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "conn").Logger(),
		meter:  meter,
		events: make(chan Event, 64),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.phase.Store(int32(PhaseConnecting))
	return m
}

// Events returns the ordered event stream. The channel closes after
// EventFatal or Close.
func (m *Manager) Events() <-chan Event { return m.events }

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase { return Phase(m.phase.Load()) }

// Retries returns the current consecutive failed reconnect count.
func (m *Manager) Retries() int { return int(m.retries.Load()) }

// Run dials and services the connection until ctx is cancelled, Close is
// called, or retries are exhausted. It owns the reconnect loop; the caller
// consumes Events concurrently.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	defer close(m.events)

	go m.keepaliveLoop(ctx)

	for {
		if err := m.dial(ctx); err != nil {
			if m.stopped(ctx) {
				return
			}
			if !m.scheduleRetry(ctx, err) {
				return
			}
			continue
		}

		m.retries.Store(0)
		m.phase.Store(int32(PhaseOpen))
		m.meter.ConnectionsTotal.WithLabelValues("approver").Inc()
		m.logger.Info().Str("endpoint", m.cfg.Endpoint).Msg("connected to relay")
		m.emit(Event{Kind: EventOpen})

		err := m.readLoop()

		m.writeMu.Lock()
		m.ws = nil
		m.writeMu.Unlock()

		if m.stopped(ctx) {
			return
		}

		m.phase.Store(int32(PhaseClosedRetrying))
		m.logger.Warn().Err(err).Msg("connection lost")
		m.emit(Event{Kind: EventClosed, Err: err})

		if !m.scheduleRetry(ctx, err) {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context) error {
	m.phase.Store(int32(PhaseConnecting))

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, m.cfg.Endpoint, nil)
	if err != nil {
		return werrors.New(werrors.KindConnectivity, "could not reach the relay", err)
	}

	m.writeMu.Lock()
	m.ws = ws
	m.writeMu.Unlock()
	return nil
}

// scheduleRetry waits the linearly-increasing delay and reports whether a
// redial should happen. Returns false once MaxAttempts consecutive
// failures have occurred, after emitting EventFatal.
func (m *Manager) scheduleRetry(ctx context.Context, cause error) bool {
	attempt := int(m.retries.Add(1))
	if attempt <= m.cfg.MaxAttempts {
		m.phase.Store(int32(PhaseClosedRetrying))
	}
	if attempt > m.cfg.MaxAttempts {
		m.phase.Store(int32(PhaseClosedFatal))
		m.logger.Error().Int("attempts", m.cfg.MaxAttempts).Msg("reconnect attempts exhausted")
		m.emit(Event{Kind: EventFatal, Err: werrors.New(
			werrors.KindConnectivity,
			"Connection lost. Please refresh.",
			werrors.ErrRetriesExhausted,
		)})
		return false
	}

	delay := retry.Config{BaseDelay: m.cfg.BaseDelay, Backoff: retry.Linear}.Delay(attempt)
	m.meter.ReconnectsTotal.Inc()
	m.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		AnErr("cause", cause).
		Msg("scheduling reconnect")

	select {
	case <-ctx.Done():
		return false
	case <-m.stopCh:
		return false
	case <-time.After(delay):
		return true
	}
}

func (m *Manager) readLoop() error {
	for {
		m.writeMu.Lock()
		ws := m.ws
		m.writeMu.Unlock()
		if ws == nil {
			return werrors.ErrNotConnected
		}

		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		m.meter.MessagesTotal.WithLabelValues("in").Inc()
		m.emit(Event{Kind: EventFrame, Raw: raw})
	}
}

// Send marshals and writes one frame. Sends fail fast with ErrNotConnected
// while the connection is not open; nothing is queued.
func (m *Manager) Send(v any) error {
	if m.Phase() != PhaseOpen {
		return werrors.ErrNotConnected
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return werrors.New(werrors.KindProtocol, "could not encode message", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.ws == nil {
		return werrors.ErrNotConnected
	}
	if err := m.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		return werrors.New(werrors.KindConnectivity, "send failed", err)
	}
	m.meter.MessagesTotal.WithLabelValues("out").Inc()
	return nil
}

// keepaliveLoop sends a ping on a fixed interval. It is a no-op while the
// connection is not open, and the peer's pong triggers no state change.
func (m *Manager) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.Phase() != PhaseOpen {
				continue
			}
			if err := m.Send(relay.NewPing()); err != nil {
				m.logger.Debug().Err(err).Msg("keepalive send failed")
			}
		}
	}
}

// Close shuts the connection down for good. No reconnect is attempted and
// no fatal event is emitted.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.stopCh)

	m.writeMu.Lock()
	ws := m.ws
	m.ws = nil
	m.writeMu.Unlock()

	if ws != nil {
		_ = ws.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return ws.Close()
	}
	return nil
}

// Done is closed when Run has fully stopped.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.stopCh:
	}
}
