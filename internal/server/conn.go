package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var errConnClosed = errors.New("connection closed")

// conn is one peer connection. Writes are serialized; gorilla allows a
// single concurrent writer and proxies write from dispatch goroutines.
type conn struct {
	ws     *websocket.Conn
	remote string

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:     ws,
		remote: ws.RemoteAddr().String(),
		done:   make(chan struct{}),
	}
}

// Send writes v as a JSON text frame.
func (c *conn) Send(ctx context.Context, v any) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// keepalive sends the announcement after delay and pings until the
// connection closes.
func (c *conn) keepalive(delay time.Duration, announce func()) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-timer.C:
			announce()
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// close is idempotent.
func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}
