package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"tcpchat/internal/gateway"
	"tcpchat/internal/server"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.Name, "name", cfg.Name, "chat name shown to joining clients")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP address to listen on")
	flag.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "maximum line size in bytes")
	flag.DurationVar(&cfg.Tick, "tick", cfg.Tick, "pause between broadcast rounds")
	flag.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "time a new connection has to identify itself")
	flag.IntVar(&cfg.HandshakeWorkers, "handshake-workers", cfg.HandshakeWorkers, "number of concurrent handshakes")
	flag.IntVar(&cfg.HandshakeBacklog, "handshake-backlog", cfg.HandshakeBacklog, "connections allowed to wait for a handshake worker")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-write deadline for client connections (0 disables)")
	flag.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "disconnect clients silent for this long (0 disables)")
	flag.IntVar(&cfg.SendQueue, "send-queue", cfg.SendQueue, "lines buffered per client before new ones are dropped")
	noEcho := flag.Bool("no-echo", false, "do not send chat lines back to their author")
	noViewers := flag.Bool("no-viewers", false, "refuse read-only viewer connections")
	wsAddr := flag.String("ws-addr", "", "also accept WebSocket clients on this HTTP address")
	wsPath := flag.String("ws-path", "/ws", "route for WebSocket clients")
	flag.Parse()

	cfg.EchoSender = !*noEcho
	cfg.AllowViewers = !*noViewers

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("init server: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.Addr, err)
	}
	listeners := []net.Listener{ln}
	if *wsAddr != "" {
		gw, err := gateway.Listen(*wsAddr, *wsPath, nil)
		if err != nil {
			ln.Close()
			log.Fatalf("init gateway: %v", err)
		}
		listeners = append(listeners, gw)
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		srv.Shutdown()
	}()

	log.Println("[server] press Ctrl-C to shut down")
	if err := srv.Serve(listeners...); err != nil {
		log.Printf("[server] stopped: %v", err)
	}
}
