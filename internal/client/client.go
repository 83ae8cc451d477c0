// Package client runs the approver: one persistent relay connection, the
// session handshake, and the approval flow for whatever transaction the
// session carries.
//
// Everything happens on a single goroutine. Connection events and human
// decisions arrive on channels and are consumed one at a time, so no state
// in this package needs a lock except the read-only status snapshot handed
// to the control surface.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nearobot/wallet/internal/approval"
	"github.com/nearobot/wallet/internal/config"
	"github.com/nearobot/wallet/internal/conn"
	"github.com/nearobot/wallet/internal/correlate"
	werrors "github.com/nearobot/wallet/internal/errors"
	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/relay"
	"github.com/nearobot/wallet/internal/session"
	"github.com/nearobot/wallet/internal/txn"
	"github.com/nearobot/wallet/pkg/wallet"
)

type actionKind int

const (
	actionApprove actionKind = iota
	actionReject
)

// Status is a point-in-time snapshot of the approver for the control
// surface. It is safe to read concurrently with the event loop.
type Status struct {
	Phase       string       `json:"phase"`
	SessionID   string       `json:"sessionId"`
	Initialized bool         `json:"initialized"`
	UserID      string       `json:"userId,omitempty"`
	Username    string       `json:"username,omitempty"`
	Approval    string       `json:"approvalState"`
	Pending     *txn.Request `json:"pendingTransaction,omitempty"`
	LastError   string       `json:"lastError,omitempty"`
}

// Client is the approver event loop and its collaborators.
type Client struct {
	cfg    config.Config
	conn   *conn.Manager
	hs     *session.Handshake
	corr   *correlate.Correlator
	wallet wallet.Wallet
	meter  *metrics.Metrics
	logger zerolog.Logger

	machine *approval.Machine
	seeded  *txn.Request

	actions chan actionKind
	done    chan struct{}

	mu     sync.RWMutex
	status Status
}

// New wires an approver. The session ID comes from cfg; an empty one is a
// fatal configuration error surfaced before any network activity.
func New(cfg config.Config, w wallet.Wallet, meter *metrics.Metrics, logger zerolog.Logger) (*Client, error) {
	hs, err := session.New(cfg.SessionID, logger)
	if err != nil {
		return nil, err
	}

	mgrCfg := conn.Config{
		Endpoint:          cfg.RelayURL,
		BaseDelay:         cfg.ReconnectBaseDelay,
		MaxAttempts:       cfg.ReconnectMaxAttempts,
		KeepaliveInterval: cfg.KeepaliveInterval,
		HandshakeTimeout:  10 * time.Second,
	}
	mgr := conn.New(mgrCfg, meter, logger)

	c := &Client{
		cfg:     cfg,
		conn:    mgr,
		hs:      hs,
		corr:    correlate.New(cfg.SessionID, mgr, meter, logger),
		wallet:  w,
		meter:   meter,
		logger:  logger.With().Str("component", "client").Logger(),
		actions: make(chan actionKind, 8),
		done:    make(chan struct{}),
	}

	// A launch URL may carry transaction parameters. They only become a
	// request if the session itself has nothing queued.
	if cfg.LaunchURL != "" {
		params, err := txn.ParseLaunchURL(cfg.LaunchURL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("ignoring malformed launch url")
		} else if params.SeedsTransaction() {
			req, err := params.Request()
			if err != nil {
				c.logger.Warn().Err(err).Msg("ignoring launch url transaction")
			} else {
				c.seeded = req
			}
		}
	}

	c.publish()
	return c, nil
}

// Approve asks the event loop to approve the pending transaction. It
// returns immediately; the decision is applied in arrival order.
func (c *Client) Approve() error { return c.submit(actionApprove) }

// Reject asks the event loop to reject the pending transaction.
func (c *Client) Reject() error { return c.submit(actionReject) }

func (c *Client) submit(a actionKind) error {
	select {
	case <-c.done:
		return werrors.ErrUnavailable
	default:
	}
	select {
	case c.actions <- a:
		return nil
	default:
		return werrors.ErrUnavailable
	}
}

// Conn exposes the connection manager for health checks.
func (c *Client) Conn() *conn.Manager { return c.conn }

// Status returns the latest published snapshot.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run drives the connection and consumes events until the context ends or
// the connection becomes fatally closed. It returns nil on a clean
// shutdown and the fatal error otherwise.
func (c *Client) Run(ctx context.Context) error {
	go c.conn.Run(ctx)
	defer c.conn.Close()
	defer close(c.done)

	var deadline *time.Timer
	var expired <-chan time.Time
	stopDeadline := func() {
		if deadline != nil {
			deadline.Stop()
			deadline, expired = nil, nil
		}
	}
	defer stopDeadline()

	for {
		c.publish()

		select {
		case <-ctx.Done():
			c.sayGoodbye()
			return nil

		case <-expired:
			stopDeadline()
			if c.machine != nil {
				c.machine.Expire()
			}

		case a := <-c.actions:
			c.handleAction(ctx, a)
			if c.machine != nil && c.machine.State() == approval.StateResolved {
				stopDeadline()
			}

		case ev, ok := <-c.conn.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case conn.EventOpen:
				c.handleOpen()
			case conn.EventFrame:
				c.handleFrame(ev.Raw)
				if c.machine != nil && c.machine.State() == approval.StateAwaitingApproval &&
					expired == nil && c.cfg.ApprovalTimeout > 0 {
					deadline = time.NewTimer(c.cfg.ApprovalTimeout)
					expired = deadline.C
				}
			case conn.EventClosed:
				c.logger.Warn().Err(ev.Err).Msg("connection lost, retrying")
			case conn.EventFatal:
				c.setError(ev.Err)
				c.publish()
				return ev.Err
			}
		}
	}
}

// handleOpen replays the session handshake. It runs on every successful
// dial, so a reconnect re-initializes the session before anything else
// moves on the wire.
func (c *Client) handleOpen() {
	c.hs.Reset()
	if err := c.conn.Send(c.hs.InitMessage()); err != nil {
		c.logger.Warn().Err(err).Msg("handshake send failed")
	}
}

func (c *Client) handleFrame(raw []byte) {
	msg, err := relay.DecodeServer(raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping undecodable frame")
		c.meter.RecordError("client", string(werrors.KindProtocol))
		return
	}

	switch m := msg.(type) {
	case relay.SessionInitialized:
		c.handleInitialized(m)

	case relay.ProcessTransaction:
		c.handleProcess(m)

	case relay.ErrorMessage:
		err := c.hs.HandleError(m)
		c.setError(err)
		c.meter.RecordError("client", string(werrors.KindOf(err)))

	case relay.Ack:
		c.logger.Debug().Str("type", m.Type).Msg("report acknowledged")

	case relay.Pong:
		c.logger.Debug().Msg("pong")

	case relay.Unknown:
		c.logger.Info().Str("type", m.Type).Msg("ignoring unknown frame type")
	}
}

func (c *Client) handleInitialized(m relay.SessionInitialized) {
	req := c.hs.HandleInitialized(m)

	// Nothing queued on the session: fall back to a launch-URL seed, once.
	if req == nil && c.seeded != nil && c.corr.Pending() == nil {
		req = c.seeded
	}
	c.seeded = nil

	if req != nil {
		c.startApproval(req)
	}

	if c.cfg.WalletID != "" {
		if err := c.conn.Send(relay.NewWalletConnected(c.hs.SessionID(), c.cfg.WalletID, "")); err != nil {
			c.logger.Warn().Err(err).Msg("wallet_connected send failed")
		}
	}

	// An outcome decided while offline is re-delivered now.
	if err := c.corr.FlushUnsent(); err != nil {
		c.logger.Warn().Err(err).Msg("re-delivery failed, will retry after next reconnect")
	}
}

func (c *Client) handleProcess(m relay.ProcessTransaction) {
	if !c.hs.Initialized() {
		c.logger.Error().Str("transaction_id", m.TransactionID).
			Msg("process_transaction before session handshake, ignoring")
		c.meter.RecordError("client", string(werrors.KindProtocol))
		return
	}

	req := &txn.Request{
		TransactionID: m.TransactionID,
		SessionID:     c.hs.SessionID(),
		Data:          m.TransactionData,
		Status:        txn.StatusReceived,
	}
	c.startApproval(req)
}

// startApproval hands a request to the correlator and, if accepted, a
// fresh approval machine. A duplicate of an already-resolved request and
// a second request while one is pending are both dropped here.
func (c *Client) startApproval(req *txn.Request) {
	if err := req.Data.Validate(); err != nil {
		c.logger.Warn().Err(err).Str("transaction_id", req.TransactionID).Msg("invalid transaction data")
		c.meter.RecordError("client", string(werrors.KindProtocol))
		return
	}
	if err := c.corr.Offer(req); err != nil {
		c.meter.RecordError("client", string(werrors.KindOf(err)))
		return
	}

	c.machine = approval.New(c.wallet, c.corr, c.meter, c.logger)
	c.machine.Begin(req)
}

func (c *Client) handleAction(ctx context.Context, a actionKind) {
	if c.machine == nil {
		c.logger.Debug().Msg("decision with no transaction pending, ignoring")
		return
	}
	switch a {
	case actionApprove:
		c.machine.Approve(ctx)
	case actionReject:
		c.machine.Reject()
	}
}

// sayGoodbye reports a clean disconnect on shutdown. Best effort.
func (c *Client) sayGoodbye() {
	if c.hs.Initialized() && c.cfg.WalletID != "" {
		_ = c.conn.Send(relay.NewWalletDisconnected(c.hs.SessionID(), "shutdown"))
	}
}

func (c *Client) setError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.status.LastError = werrors.UserMessage(err)
	c.mu.Unlock()
}

func (c *Client) publish() {
	id := c.hs.Identity()
	s := Status{
		Phase:       c.conn.Phase().String(),
		SessionID:   c.hs.SessionID(),
		Initialized: c.hs.Initialized(),
		UserID:      id.UserID,
		Username:    id.Username,
		Approval:    string(approval.StateIdle),
	}
	if c.machine != nil {
		s.Approval = string(c.machine.State())
		if c.machine.State() == approval.StateAwaitingApproval {
			s.Pending = c.machine.Request()
		}
	}

	c.mu.Lock()
	s.LastError = c.status.LastError
	c.status = s
	c.mu.Unlock()
}
