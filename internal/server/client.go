package server

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"tcpchat/internal/protocol"
)

// Client represents one admitted connection.
//
// Two goroutines are spawned per client once the loop admits it:
//
//	readPump  – blocks on the connection, splits input into lines and parks
//	            them in the mailbox until the loop collects them.
//	writePump – drains the send channel and writes each line to the
//	            connection.
//
// Neither pump touches the registry. A transport fault is recorded on the
// client and the loop prunes it on its next liveness check.
type Client struct {
	id     string // unique connection identifier, for logs
	conn   net.Conn
	reader *bufio.Reader // may already hold bytes read past the handshake line
	role   protocol.Role
	name   string

	send chan []byte // framed outbound lines

	// mailbox and fault are written by the pumps and read by the loop.
	mu      sync.Mutex
	mailbox [][]byte
	fault   error

	releaseOnce sync.Once
	released    bool // set inside releaseOnce; read only by the loop
}

func newClient(conn net.Conn, reader *bufio.Reader, hello protocol.Hello, sendQueue int) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		reader: reader,
		role:   hello.Role,
		name:   hello.Name,
		send:   make(chan []byte, sendQueue),
	}
}

// Name returns the registered name, empty for viewers.
func (c *Client) Name() string { return c.name }

// Role returns the client's capability set.
func (c *Client) Role() protocol.Role { return c.role }

// label is how the client appears in logs.
func (c *Client) label() string {
	if c.name != "" {
		return c.name + " (" + c.id + ")"
	}
	return c.role.String() + " (" + c.id + ")"
}

// setFault records the first transport fault.
func (c *Client) setFault(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fault == nil {
		c.fault = err
	}
}

// drainedFault returns the recorded fault once every line read before it has
// been taken. It never consumes the mailbox.
func (c *Client) drainedFault() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.mailbox) > 0 {
		return nil
	}
	return c.fault
}

func (c *Client) park(line []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mailbox = append(c.mailbox, line)
}

// takeLines empties the mailbox. It never blocks on the connection.
func (c *Client) takeLines() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.mailbox
	c.mailbox = nil
	return lines
}

// readPump reads lines until the connection fails. Lines longer than the
// reader's buffer are delivered in buffer-sized pieces. An unterminated tail
// at EOF is discarded with the connection.
func (c *Client) readPump(idle time.Duration) {
	for {
		if idle > 0 {
			c.conn.SetReadDeadline(time.Now().Add(idle))
		}
		chunk, err := c.reader.ReadSlice(protocol.Terminator)
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
		default:
			c.setFault(err)
			return
		}
		if !c.role.CanSend() {
			continue
		}
		// A piece cut at the buffer size keeps its bytes, a '\r' included.
		line := chunk
		if err == nil {
			line = protocol.TrimEOL(chunk)
		}
		if len(line) == 0 {
			continue
		}
		// ReadSlice reuses its buffer.
		c.park(append([]byte(nil), line...))
	}
}

// writePump writes queued lines until the send channel is closed or a write
// fails. A failed write closes the connection so readPump unblocks too.
func (c *Client) writePump(timeout time.Duration) {
	for data := range c.send {
		if timeout > 0 {
			c.conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		if _, err := c.conn.Write(data); err != nil {
			c.setFault(err)
			c.conn.Close()
			return
		}
	}
}

// deliver queues a framed line without blocking. It reports false when the
// client's queue is full and the line was dropped for this client.
func (c *Client) deliver(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// release stops the write pump and closes the connection. Only the loop calls
// it; later calls are no-ops. The returned error is the close error of the
// first call.
func (c *Client) release() (err error) {
	c.releaseOnce.Do(func() {
		c.released = true
		close(c.send)
		err = c.conn.Close()
	})
	return err
}
