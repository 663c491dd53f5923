package ws

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// Conn wraps a websocket with a buffered outbound channel. The room owns the
// channel once the connection is bound; the writer loop is the only goroutine
// touching the socket for writes.
type Conn struct {
	ws  *websocket.Conn
	out chan []byte
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, out: make(chan []byte, 256)}
}

// writeLoop drains the outbox and keeps the connection alive with pings.
// Exits when the outbox closes (room shut down or member left) or ctx ends.
func (c *Conn) writeLoop(ctx context.Context) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				_ = c.ws.Close(websocket.StatusGoingAway, "room closed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_ = c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
		case <-ping.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// send is for pre-bind frames (NOT_FOUND, CREATE reply) written before any
// room owns the outbox.
func (c *Conn) send(data []byte) {
	select {
	case c.out <- data:
	default:
	}
}

func (c *Conn) read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}
