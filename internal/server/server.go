// Package server implements the TCP chat server.
//
// Concurrency overview
// --------------------
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Accept goroutine (one per listener)                     │
//	│  Hands every new connection to the handshake pool.       │
//	└───────────────────┬──────────────────────────────────────┘
//	                    │  net.Conn
//	                    ▼
//	┌──────────────────────────────────────────────────────────┐
//	│  Handshake pool  (N goroutines)                          │
//	│  Reads the first line, then asks the loop to admit.      │
//	└───────────────────┬──────────────────────────────────────┘
//	                    │  admission requests
//	                    ▼
//	┌──────────────────────────────────────────────────────────┐
//	│  Loop goroutine  (Serve)                                 │
//	│  Every tick: admit → prune → collect → broadcast → wait. │
//	│  Sole writer of the registry and the outbound queue.     │
//	└──────────────────────────────────────────────────────────┘
//
//	Each admitted Client runs a readPump and a writePump. The pumps report
//	lines and faults through the client's mailbox; the loop picks them up.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrServerStarted is returned by Serve on a server that already ran.
	ErrServerStarted = errors.New("server: already started")
	// ErrServerClosed is returned by Serve after Shutdown.
	ErrServerClosed = errors.New("server: closed")
)

// State is the lifecycle stage of a Server.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats is a point-in-time view of the server counters.
type Stats struct {
	Active   int    // clients currently registered
	Admitted uint64 // handshakes that ended in registration
	Rejected uint64 // handshakes that ended in a closed connection
	Dropped  uint64 // clients pruned after a disconnect
}

// Server ties together the listeners, the handshake pool and the loop.
type Server struct {
	cfg    Config
	logger *log.Logger

	state    atomic.Int32
	quit     chan struct{} // closed by Shutdown
	quitOnce sync.Once
	done     chan struct{} // closed when Serve returns

	clients *Registry
	queue   []outbound
	admit   chan admission

	lnMu      sync.Mutex
	listeners []net.Listener

	pendingMu sync.Mutex
	pending   map[net.Conn]struct{} // connections inside a handshake

	acceptWG sync.WaitGroup
	wg       sync.WaitGroup // client pumps

	admitted atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a Server in the Created state.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		logger:  cfg.logger(),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		clients: newRegistry(),
		admit:   make(chan admission),
		pending: make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe binds cfg.Addr and runs the loop until Shutdown.
func (s *Server) ListenAndServe() error {
	if s.State() != StateCreated {
		return s.startErr()
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve runs the loop over the given listeners until Shutdown. The first
// listener is the primary one reported by Addr. Serve closes every listener
// before returning.
func (s *Server) Serve(listeners ...net.Listener) error {
	if len(listeners) == 0 {
		return errors.New("server: no listener")
	}
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		for _, ln := range listeners {
			ln.Close()
		}
		return s.startErr()
	}
	defer close(s.done)

	s.lnMu.Lock()
	s.listeners = listeners
	s.lnMu.Unlock()

	pool := newHandshakePool(s.cfg.HandshakeWorkers, s.cfg.HandshakeBacklog, s.handshake)
	for _, ln := range listeners {
		s.logger.Printf("[server] %q listening on %s", s.cfg.Name, ln.Addr())
		s.acceptWG.Add(1)
		go s.acceptLoop(ln, pool)
	}

	s.run()

	s.closeListeners()
	s.acceptWG.Wait()
	s.closePending()
	pool.stop()
	s.wg.Wait()
	s.state.Store(int32(StateStopped))
	s.logger.Printf("[server] stopped")
	return nil
}

// run is the tick loop. It returns once Shutdown has been called, after
// releasing every remaining client.
func (s *Server) run() {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for !s.stopping() {
		s.admitPending()
		s.pruneDisconnected()
		s.collectInbound()
		s.broadcast()

		select {
		case <-ticker.C:
		case <-s.quit:
		}
	}

	for _, c := range s.clients.Snapshot() {
		s.clients.Remove(c)
		s.releaseClient(c)
	}
	s.queue = nil
}

// acceptLoop hands accepted connections to the handshake pool until the
// listener is closed. Other accept errors, such as running out of file
// descriptors, are retried with a growing delay.
func (s *Server) acceptLoop(ln net.Listener, pool *handshakePool) {
	defer s.acceptWG.Done()
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				return
			}
			delay = acceptBackoff(delay)
			s.logger.Printf("[server] accept on %s: %v; retrying in %v", ln.Addr(), err, delay)
			select {
			case <-time.After(delay):
			case <-s.quit:
				return
			}
			continue
		}
		delay = 0
		if !pool.submit(conn) {
			s.rejected.Add(1)
			s.logger.Printf("[server] handshake backlog full, closing %s", conn.RemoteAddr())
			conn.Close()
		}
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(2*prev, maxAcceptDelay)
}

// Shutdown asks the loop to stop. It returns immediately, may be called from
// any goroutine and any number of times.
func (s *Server) Shutdown() {
	s.quitOnce.Do(func() {
		close(s.quit)
		s.logger.Printf("[server] shutting down")
		if s.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
			close(s.done)
		}
	})
}

// Done is closed once the server has fully stopped.
func (s *Server) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle stage.
func (s *Server) State() State { return State(s.state.Load()) }

// Addr returns the primary listener address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// Names lists the registered messenger names in admission order.
func (s *Server) Names() []string { return s.clients.Names() }

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Active:   s.clients.Len(),
		Admitted: s.admitted.Load(),
		Rejected: s.rejected.Load(),
		Dropped:  s.dropped.Load(),
	}
}

func (s *Server) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Server) startErr() error {
	if s.State() == StateStopped || s.stopping() {
		return ErrServerClosed
	}
	return ErrServerStarted
}

func (s *Server) closeListeners() {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	for _, ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Printf("[server] close listener %s: %v", ln.Addr(), err)
		}
	}
}

// trackPending records a connection in handshake so shutdown can cut it
// short. It refuses once shutdown has started.
func (s *Server) trackPending(conn net.Conn) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.stopping() {
		return false
	}
	s.pending[conn] = struct{}{}
	return true
}

func (s *Server) untrackPending(conn net.Conn) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, conn)
}

func (s *Server) closePending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for conn := range s.pending {
		conn.Close()
	}
}
