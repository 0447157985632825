package server

import (
	"fmt"
	"log"
	"time"
)

// Config holds every tunable of a Server. Start from DefaultConfig and
// override fields; New rejects a Config that fails Validate.
type Config struct {
	// Name is the chat name shown in the welcome line.
	Name string
	// Addr is the TCP address ListenAndServe binds.
	Addr string

	// BufferSize bounds a single inbound line, the handshake included.
	BufferSize int
	// Tick is the pause between loop iterations.
	Tick time.Duration

	HandshakeTimeout time.Duration
	HandshakeWorkers int
	// HandshakeBacklog is how many accepted connections may wait for a
	// handshake worker before new ones are closed outright.
	HandshakeBacklog int

	// WriteTimeout bounds every write to a client. Zero disables it.
	WriteTimeout time.Duration
	// IdleTimeout disconnects a client that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// SendQueue is the capacity of each client's outbound queue.
	SendQueue int

	// EchoSender delivers a chat line back to its author too.
	EchoSender bool
	// AllowViewers admits read-only "viewer" handshakes.
	AllowViewers bool

	Logger *log.Logger
}

// DefaultConfig returns the configuration used by the server binary when no
// flags are given.
func DefaultConfig() Config {
	return Config{
		Name:             "Go Chat",
		Addr:             ":6000",
		BufferSize:       2 * 1024,
		Tick:             10 * time.Millisecond,
		HandshakeTimeout: 5 * time.Second,
		HandshakeWorkers: 8,
		HandshakeBacklog: 64,
		WriteTimeout:     10 * time.Second,
		SendQueue:        256,
		EchoSender:       true,
		AllowViewers:     true,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.BufferSize < 16:
		return fmt.Errorf("server: buffer size %d is below 16 bytes", c.BufferSize)
	case c.Tick <= 0:
		return fmt.Errorf("server: tick must be positive, got %v", c.Tick)
	case c.HandshakeTimeout <= 0:
		return fmt.Errorf("server: handshake timeout must be positive, got %v", c.HandshakeTimeout)
	case c.HandshakeWorkers < 1:
		return fmt.Errorf("server: need at least one handshake worker, got %d", c.HandshakeWorkers)
	case c.HandshakeBacklog < 0:
		return fmt.Errorf("server: negative handshake backlog %d", c.HandshakeBacklog)
	case c.WriteTimeout < 0:
		return fmt.Errorf("server: negative write timeout %v", c.WriteTimeout)
	case c.IdleTimeout < 0:
		return fmt.Errorf("server: negative idle timeout %v", c.IdleTimeout)
	case c.SendQueue < 1:
		return fmt.Errorf("server: send queue must hold at least one message, got %d", c.SendQueue)
	}
	return nil
}

func (c Config) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}
