// Package gateway lets WebSocket clients join the chat. A Gateway serves HTTP,
// upgrades requests on its chat route and hands the resulting connections out
// through Accept, so it plugs into the chat server as one more net.Listener.
package gateway

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// ErrGatewayClosed is returned by Accept after Close. It matches net.ErrClosed.
var ErrGatewayClosed = fmt.Errorf("gateway: %w", net.ErrClosed)

// Gateway is a net.Listener backed by an HTTP server.
type Gateway struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	logger   *log.Logger

	conns     chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
	serveErr  chan error
}

// Listen binds addr and starts serving. Chat connections are upgraded on
// path; GET /healthz answers "ok".
func Listen(addr, path string, logger *log.Logger) (*Gateway, error) {
	if logger == nil {
		logger = log.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gateway: listen %s: %w", addr, err)
	}

	g := &Gateway{
		ln: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			// Browsers from any origin may join; the chat has no auth anyway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   logger,
		conns:    make(chan net.Conn),
		closed:   make(chan struct{}),
		serveErr: make(chan error, 1),
	}

	r := mux.NewRouter()
	r.HandleFunc(path, g.handleUpgrade).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	g.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := g.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		g.serveErr <- err
	}()
	logger.Printf("[gateway] websocket chat on ws://%s%s", ln.Addr(), path)
	return g, nil
}

func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		g.logger.Printf("[gateway] upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	conn := newWSConn(ws)
	select {
	case g.conns <- conn:
	case <-g.closed:
		conn.Close()
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// Accept waits for the next upgraded connection.
func (g *Gateway) Accept() (net.Conn, error) {
	select {
	case conn := <-g.conns:
		return conn, nil
	case <-g.closed:
		return nil, ErrGatewayClosed
	}
}

// Close stops the HTTP server. Connections already handed out stay open;
// they belong to whoever accepted them.
func (g *Gateway) Close() error {
	err := ErrGatewayClosed
	g.closeOnce.Do(func() {
		close(g.closed)
		err = g.srv.Close()
		if serveErr := <-g.serveErr; serveErr != nil && err == nil {
			err = serveErr
		}
	})
	return err
}

// Addr returns the HTTP listen address.
func (g *Gateway) Addr() net.Addr { return g.ln.Addr() }
