// Package ws is the websocket transport adapter: one connection, one
// session, one reader goroutine and one writer goroutine.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Zaiknown/chat-project/internal/core"
)

const writeWait = 5 * time.Second

// transport is what a session needs from its connection. Tests swap in
// a fake; wsConn is the real one.
type transport interface {
	TrySend(core.Frame) error
	CloseWithCode(code int, reason string)
	Close()
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn, readLimit int64) *wsConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &wsConn{
		conn: conn,
		send: make(chan core.Frame, 32),
	}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// CloseWithCode sends a close frame with a meaningful code (4001, 4003,
// 4004) before dropping the connection.
func (c *wsConn) CloseWithCode(code int, reason string) {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.writeMu.Unlock()
	c.Close()
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) writePump(ctx context.Context, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
