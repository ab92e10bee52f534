package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrBackpressure = errors.New("ws: send buffer full")
var errClosed = errors.New("ws: connection closed")

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 32 * 1024
)

// Socket is an indirection over *websocket.Conn to ease testing.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

// Conn is one participant's websocket connection. It implements
// presence.Handle: the registry, the relay and the notifier all push through
// TrySend, which never blocks.
type Conn struct {
	identity string
	sock     Socket

	send chan any
	done chan struct{}
	once sync.Once
}

func newConn(identity string, sock Socket, buffer int) *Conn {
	return &Conn{
		identity: identity,
		sock:     sock,
		send:     make(chan any, buffer),
		done:     make(chan struct{}),
	}
}

// TrySend queues v for delivery. A full buffer or a closed connection drops
// the frame; the caller decides whether that matters.
func (c *Conn) TrySend(v any) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- v:
		return nil
	case <-c.done:
		return errClosed
	default:
		return ErrBackpressure
	}
}

// Close tears the connection down. Idempotent; safe from any goroutine.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

// writePump owns all writes to the socket: queued frames and pings. It exits
// when the connection closes or a write fails, and tearing down is its job.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
