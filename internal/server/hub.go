package server

import (
	"errors"
	"net"

	"tcpchat/internal/protocol"
)

// outbound is one fully formed line waiting for broadcast.
type outbound struct {
	origin *Client // nil for server announcements
	text   string
}

// The steps below make up one tick. They run on the loop goroutine only,
// which makes it the single owner of the registry writes and the queue.

// admitPending registers every client whose handshake has completed since the
// last tick. Registration and the verdict happen together, so a handshake
// never sees a half-registered state.
func (s *Server) admitPending() {
	for {
		select {
		case req := <-s.admit:
			s.admitOne(req)
		default:
			return
		}
	}
}

func (s *Server) admitOne(req admission) {
	c := req.client
	if err := s.clients.Add(c); err != nil {
		req.verdict <- err
		return
	}
	s.admitted.Add(1)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.readPump(s.cfg.IdleTimeout)
	}()
	go func() {
		defer s.wg.Done()
		c.writePump(s.cfg.WriteTimeout)
	}()

	c.deliver(protocol.Frame(protocol.WelcomeLine(s.cfg.Name)))
	if c.role.CanSend() {
		s.enqueue(nil, protocol.EnteredLine(c.name))
	}
	s.logger.Printf("[hub] +%s  total=%d", c.label(), s.clients.Len())
	req.verdict <- nil
}

// pruneDisconnected removes every dead client, announcing named ones.
func (s *Server) pruneDisconnected() {
	for _, c := range s.clients.Snapshot() {
		dead, cause := detectDisconnect(c)
		if !dead {
			continue
		}
		s.clients.Remove(c)
		s.dropped.Add(1)
		if c.name != "" {
			s.enqueue(nil, protocol.LeftLine(c.name))
		}
		s.logger.Printf("[hub] -%s %s  total=%d", c.label(), cause, s.clients.Len())
		s.releaseClient(c)
	}
}

// collectInbound moves every complete line from the clients' mailboxes onto
// the queue, in admission order.
func (s *Server) collectInbound() {
	for _, c := range s.clients.Snapshot() {
		lines := c.takeLines()
		if !c.role.CanSend() {
			continue
		}
		for _, line := range lines {
			s.enqueue(c, protocol.ChatLine(c.name, protocol.DecodeText(line)))
		}
	}
}

// broadcast writes the queue to every active client and clears it. A client
// that cannot keep up loses the line; the others are unaffected.
func (s *Server) broadcast() {
	if len(s.queue) == 0 {
		return
	}
	clients := s.clients.Snapshot()
	for _, msg := range s.queue {
		s.logger.Printf("[hub] %s", msg.text)
		data := protocol.Frame(msg.text)
		for _, c := range clients {
			if msg.origin == c && !s.cfg.EchoSender {
				continue
			}
			if !c.deliver(data) {
				s.logger.Printf("[hub] send queue full, dropped line for %s", c.label())
			}
		}
	}
	clear(s.queue)
	s.queue = s.queue[:0]
}

func (s *Server) enqueue(origin *Client, text string) {
	s.queue = append(s.queue, outbound{origin: origin, text: text})
}

// releaseClient frees the client's connection. A close failure is logged and
// otherwise ignored.
func (s *Server) releaseClient(c *Client) {
	if err := c.release(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Printf("[hub] close %s: %v", c.label(), err)
	}
}
