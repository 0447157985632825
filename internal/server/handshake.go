package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"tcpchat/internal/protocol"
)

var (
	// ErrViewersDisabled is returned for a viewer handshake when viewers are
	// not admitted.
	ErrViewersDisabled = errors.New("viewers are not admitted")
	errNoHello         = errors.New("no handshake line")
	errHelloTooLong    = errors.New("handshake line exceeds buffer")
)

// rejectLinger bounds the best-effort rejection notice.
const rejectLinger = 250 * time.Millisecond

// admission carries a handshaken client to the loop, which answers on verdict.
type admission struct {
	client  *Client
	verdict chan error
}

// handshake classifies a freshly accepted connection. On success the client
// is registered by the loop and its pumps are running; on any failure the
// connection is closed and nothing is registered.
func (s *Server) handshake(conn net.Conn) {
	remote := conn.RemoteAddr()
	if s.stopping() {
		conn.Close()
		return
	}
	if !s.trackPending(conn) {
		conn.Close()
		return
	}
	defer s.untrackPending(conn)

	reader := bufio.NewReaderSize(conn, s.cfg.BufferSize)
	hello, err := readHello(conn, reader, s.cfg.HandshakeTimeout)
	if err == nil && hello.Role == protocol.RoleViewer && !s.cfg.AllowViewers {
		err = ErrViewersDisabled
	}
	if err != nil {
		s.reject(conn, err)
		return
	}

	c := newClient(conn, reader, hello, s.cfg.SendQueue)
	req := admission{client: c, verdict: make(chan error, 1)}
	select {
	case s.admit <- req:
	case <-s.quit:
		conn.Close()
		return
	}
	// The loop answers every request it receives before doing anything else.
	if err = <-req.verdict; err != nil {
		s.reject(conn, err)
		return
	}
	s.logger.Printf("[handshake] %s admitted from %s", c.label(), remote)
}

// readHello reads the first line within timeout.
func readHello(conn net.Conn, reader *bufio.Reader, timeout time.Duration) (protocol.Hello, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	line, err := reader.ReadSlice(protocol.Terminator)
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return protocol.Hello{}, errHelloTooLong
	case errors.Is(err, io.EOF) && len(line) == 0:
		return protocol.Hello{}, errNoHello
	default:
		return protocol.Hello{}, fmt.Errorf("read handshake: %w", err)
	}
	return protocol.ParseHello(line)
}

// reject tells the peer why, best effort, and closes the connection.
func (s *Server) reject(conn net.Conn, reason error) {
	s.rejected.Add(1)
	s.logger.Printf("[handshake] rejected %s: %v", conn.RemoteAddr(), reason)

	conn.SetWriteDeadline(time.Now().Add(rejectLinger))
	conn.Write(protocol.Frame(protocol.RejectedLine(reason.Error())))
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Printf("[handshake] close %s: %v", conn.RemoteAddr(), err)
	}
}
