package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second

	// DefaultQueueSize bounds the per-connection outbound queue. A slow
	// reader loses the oldest events instead of back-pressuring publishers.
	DefaultQueueSize = 64
)

var ErrListenTimeout = errors.New("listen timed out")

// Conn wraps one WebSocket connection. Outbound messages go through a bounded
// queue drained by a single writer goroutine, so Send never blocks on a slow
// peer and write ordering is preserved.
type Conn struct {
	conn    *websocket.Conn
	id      uuid.UUID
	out     chan any
	doneCtx context.Context
	cancel  context.CancelFunc

	onDrop func() // called for every message dropped on overflow

	mu     sync.Mutex
	closed bool
}

func NewConn(ctx context.Context, id uuid.UUID, conn *websocket.Conn, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(ctx)

	c := &Conn{
		conn:    conn,
		id:      id,
		out:     make(chan any, queueSize),
		doneCtx: ctx,
		cancel:  cancel,
	}

	go c.writePump()

	return c
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// OnDrop registers a callback invoked when an outbound message is discarded.
func (c *Conn) OnDrop(fn func()) {
	c.onDrop = fn
}

// Send enqueues msg for delivery. If the queue is full the oldest queued
// message is discarded to make room. Returns an error only when the
// connection is already closed.
func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("send failed: connection closed")
	}
	c.mu.Unlock()

	select {
	case c.out <- msg:
		return nil
	default:
	}

	// Queue full: drop the oldest entry, then retry once.
	select {
	case <-c.out:
		if c.onDrop != nil {
			c.onDrop()
		}
	default:
	}

	select {
	case c.out <- msg:
	default:
		if c.onDrop != nil {
			c.onDrop()
		}
	}
	return nil
}

// writePump is the single writer for the underlying socket. It drains the
// outbound queue and keeps the connection alive with periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.doneCtx.Done():
			return

		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte("ping"),
				time.Now().Add(writeTimeout),
			); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Listen reads inbound JSON messages until the connection dies or the handler
// fails. It is the caller's read pump; connection teardown (unsubscribe etc.)
// belongs in the caller's defer.
func (c *Conn) Listen(handler func(msg map[string]any) error) error {
	for {
		select {
		case <-c.doneCtx.Done():
			return errors.New("listen stopped: context done")
		default:
			var msg map[string]any
			if err := c.conn.ReadJSON(&msg); err != nil {
				return fmt.Errorf("read failed: %w", err)
			}
			if err := handler(msg); err != nil {
				return fmt.Errorf("handler failed: %w", err)
			}
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.cancel != nil {
		c.cancel()
	}

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
