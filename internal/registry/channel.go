// ABOUTME: WebSocket-backed Channel with a single-writer pump per connection.
// ABOUTME: Serializes concurrent pushes so frames are never interleaved or reordered.

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBufferSize is the per-channel queue between callers and the write
// pump. Callers see an error, not a block, when it overflows.
const sendBufferSize = 256

// ErrChannelClosed is returned by Send after the channel has closed.
var ErrChannelClosed = errors.New("channel closed")

// ErrSendBufferFull is returned when the write pump cannot keep up.
var ErrSendBufferFull = errors.New("send buffer full")

// WSChannel wraps a websocket connection behind the Channel interface.
// All writes go through one pump goroutine; Send only enqueues.
type WSChannel struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once

	mu       sync.Mutex
	writeErr error
}

// NewWSChannel wraps the connection and starts its write pump.
func NewWSChannel(conn *websocket.Conn, logger *slog.Logger) *WSChannel {
	if logger == nil {
		logger = slog.Default()
	}
	ch := &WSChannel{
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "ws-channel"),
	}
	go ch.writePump()
	return ch
}

// Send enqueues one payload for the write pump. It never blocks the
// caller: a full queue or closed channel returns an error immediately.
func (c *WSChannel) Send(payload []byte) error {
	select {
	case <-c.done:
		return c.sendError()
	default:
	}

	select {
	case c.sendCh <- payload:
		return nil
	case <-c.done:
		return c.sendError()
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump and closes the underlying connection.
// Safe to call multiple times.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.conn.Close()
}

// writePump is the single writer for the connection. It exits on close
// or on the first write failure.
func (c *WSChannel) writePump() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.sendCh:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.setWriteErr(err)
				c.closeOnce.Do(func() {
					close(c.done)
				})
				return
			}
		}
	}
}

func (c *WSChannel) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *WSChannel) sendError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, c.writeErr)
	}
	return ErrChannelClosed
}
