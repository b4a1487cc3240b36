// Package ws adapts gorilla/websocket connections to core.SignalConnection
// and drives the read/write pumps that feed the Signaling Layer.
// Grounded on the teacher's internal/adapters/signal io.go write/read pump
// pair, reworked to hand frames to signaling.Server instead of dispatching
// inline.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/intercom/internal/core"
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn implements core.SignalConnection over one gorilla websocket.
type Conn struct {
	ws   *websocket.Conn
	send chan core.Frame

	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, send: make(chan core.Frame, 32), writeTimeout: writeTimeout}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- f:
		return nil
	default:
		return errBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.ws.Close()
}

// WritePump drains c.send to the socket until it is closed. Run it in its
// own goroutine per connection.
func (c *Conn) WritePump() {
	for frame := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Warn().Err(err).Str("module", "ws").Msg("write pump error")
			return
		}
	}
}

// ReadPump reads frames off the socket and hands each to onFrame, until
// the socket errors or closes; onDone is called exactly once on exit so
// the caller can cascade session teardown.
func (c *Conn) ReadPump(readLimit int64, pongWait time.Duration, onFrame func([]byte), onDone func()) {
	defer onDone()

	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onFrame(data)
	}
}

// PingLoop sends periodic WS ping control frames so idle connections are
// detected within pongWait (§ supplemented keepalive, grounded on
// PufferBlow-media-sfu's ping/pong interval).
func (c *Conn) PingLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type backpressureError struct{}

func (backpressureError) Error() string { return "send buffer full" }

var errBackpressure = backpressureError{}
