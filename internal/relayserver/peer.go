package relayserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 32
)

// peer wraps one WebSocket connection with a serialized outbound queue.
// All writes go through the send channel so concurrent handlers never
// touch the socket directly.
type peer struct {
	ws        *websocket.Conn
	send      chan any
	closed    chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger

	// onDrop receives every queued frame that never reached the socket
	// because a write failed. May be nil.
	onDrop func(v any)

	// set after a successful init_session or bot_connect
	sessionID string
	producer  bool
}

func newPeer(ws *websocket.Conn, logger zerolog.Logger, onDrop func(v any)) *peer {
	p := &peer{
		ws:     ws,
		send:   make(chan any, sendQueueSize),
		closed: make(chan struct{}),
		logger: logger,
		onDrop: onDrop,
	}
	go p.writePump()
	return p
}

// Send queues one frame. It fails when the peer is gone or its queue is
// full; the caller decides whether that warrants a dead letter.
func (p *peer) Send(v any) error {
	select {
	case <-p.closed:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case p.send <- v:
		return nil
	default:
		return errSendQueueFull
	}
}

func (p *peer) writePump() {
	for {
		select {
		case <-p.closed:
			return
		case v := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.ws.WriteJSON(v); err != nil {
				p.logger.Debug().Err(err).Msg("peer write failed")
				p.dropQueued(v)
				p.close()
				return
			}
		}
	}
}

// dropQueued hands the failed frame, and anything still queued behind it,
// to onDrop so a send that looked accepted is not silently lost.
func (p *peer) dropQueued(failed any) {
	if p.onDrop == nil {
		return
	}
	p.onDrop(failed)
	for {
		select {
		case v := <-p.send:
			p.onDrop(v)
		default:
			return
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.ws.Close()
	})
}
