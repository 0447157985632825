package server

import (
	"errors"
	"fmt"
	"sync"

	"tcpchat/internal/protocol"
)

var (
	// ErrNameTaken is returned when a messenger asks for a name already held
	// by an active client.
	ErrNameTaken = errors.New("name is already taken")
	// ErrClientKept is returned when the same client is added twice.
	ErrClientKept = errors.New("client is registered already")
)

// Registry is the authoritative set of active clients.
//
// clients keeps admission order, which is the iteration order of collection
// and broadcast. names maps every messenger name to its client; viewers have
// no entry. Add and Remove always touch both or neither.
//
// The server loop is the only writer. The RWMutex lets other goroutines
// (Stats, tests) read consistent snapshots.
type Registry struct {
	mu      sync.RWMutex
	clients []*Client
	names   map[string]*Client
}

func newRegistry() *Registry {
	return &Registry{names: make(map[string]*Client)}
}

// Add registers c. A messenger with an empty or colliding name is refused
// and nothing changes.
func (r *Registry) Add(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.clients {
		if existing == c {
			return ErrClientKept
		}
	}
	if c.role.CanSend() {
		if c.name == "" {
			return protocol.ErrEmptyName
		}
		if _, taken := r.names[c.name]; taken {
			return fmt.Errorf("%q: %w", c.name, ErrNameTaken)
		}
		r.names[c.name] = c
	}
	r.clients = append(r.clients, c)
	return nil
}

// Remove unregisters c and reports whether it was present.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.clients {
		if existing != c {
			continue
		}
		r.clients = append(r.clients[:i:i], r.clients[i+1:]...)
		if c.name != "" && r.names[c.name] == c {
			delete(r.names, c.name)
		}
		return true
	}
	return false
}

// Lookup returns the messenger registered under name.
func (r *Registry) Lookup(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.names[name]
	return c, ok
}

// Snapshot returns the active clients in admission order.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, len(r.clients))
	copy(out, r.clients)
	return out
}

// Names returns messenger names in admission order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for _, c := range r.clients {
		if c.name != "" {
			out = append(out, c.name)
		}
	}
	return out
}

// Len returns the number of active clients, viewers included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// consistent checks the name map against the client list.
func (r *Registry) consistent() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	named := 0
	for _, c := range r.clients {
		if c.name == "" {
			continue
		}
		named++
		if r.names[c.name] != c {
			return fmt.Errorf("client %s listed without name entry %q", c.id, c.name)
		}
	}
	if named != len(r.names) {
		return fmt.Errorf("%d name entries for %d named clients", len(r.names), named)
	}
	return nil
}
