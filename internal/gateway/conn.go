package gateway

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn presents a WebSocket connection as a byte stream. Every inbound
// message ends with a newline, so one message is one line to the chat server.
// Every Write becomes one text message.
type wsConn struct {
	ws *websocket.Conn

	cur     io.Reader // current inbound message
	lastNL  bool      // last byte read from cur was '\n'
	pending bool      // cur hit EOF without a trailing newline

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if c.pending {
			c.pending = false
			p[0] = '\n'
			return 1, nil
		}
		if c.cur == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, translate(err)
			}
			c.cur, c.lastNL = r, true
		}
		n, err := c.cur.Read(p)
		if n > 0 {
			c.lastNL = p[n-1] == '\n'
		}
		if errors.Is(err, io.EOF) {
			c.pending = !c.lastNL
			c.cur = nil
			err = nil
		}
		if n > 0 || err != nil {
			return n, translate(err)
		}
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, translate(err)
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// translate maps a normal close handshake to io.EOF so the chat server sees a
// plain disconnect.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	return err
}
