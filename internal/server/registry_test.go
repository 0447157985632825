package server

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"testing"

	"tcpchat/internal/protocol"
)

func pipeClient(t *testing.T, hello protocol.Hello) *Client {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return newClient(b, nil, hello, 4)
}

func messenger(t *testing.T, name string) *Client {
	return pipeClient(t, protocol.Hello{Role: protocol.RoleMessenger, Name: name})
}

func viewer(t *testing.T) *Client {
	return pipeClient(t, protocol.Hello{Role: protocol.RoleViewer})
}

func TestRegistry_AddRemove(t *testing.T) {
	r := newRegistry()
	alice, bob, v := messenger(t, "alice"), messenger(t, "bob"), viewer(t)

	for _, c := range []*Client{alice, v, bob} {
		if err := r.Add(c); err != nil {
			t.Fatalf("Add(%s): %v", c.label(), err)
		}
	}
	if err := r.Add(alice); !errors.Is(err, ErrClientKept) {
		t.Errorf("re-adding alice: got %v, want ErrClientKept", err)
	}
	if got := r.Len(); got != 3 {
		t.Errorf("Len = %d, want 3", got)
	}
	if got := fmt.Sprint(r.Names()); got != "[alice bob]" {
		t.Errorf("Names = %s", got)
	}
	if c, ok := r.Lookup("bob"); !ok || c != bob {
		t.Error("Lookup(bob) failed")
	}

	if !r.Remove(alice) {
		t.Error("Remove(alice) reported absent")
	}
	if r.Remove(alice) {
		t.Error("second Remove(alice) reported present")
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Error("alice still has a name entry")
	}
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0] != v || snap[1] != bob {
		t.Errorf("Snapshot order broken: %v", snap)
	}
	if err := r.consistent(); err != nil {
		t.Error(err)
	}
}

func TestRegistry_NameCollision(t *testing.T) {
	r := newRegistry()
	first, second := messenger(t, "alice"), messenger(t, "alice")
	if err := r.Add(first); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(second); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("got %v, want ErrNameTaken", err)
	}
	if r.Len() != 1 {
		t.Errorf("refused client left a list entry, Len = %d", r.Len())
	}
	if c, _ := r.Lookup("alice"); c != first {
		t.Error("name entry no longer points at the first client")
	}

	// the name is free again once its holder leaves
	r.Remove(first)
	if err := r.Add(second); err != nil {
		t.Errorf("Add after release: %v", err)
	}
}

func TestRegistry_EmptyMessengerName(t *testing.T) {
	r := newRegistry()
	if err := r.Add(messenger(t, "")); !errors.Is(err, protocol.ErrEmptyName) {
		t.Fatalf("got %v, want ErrEmptyName", err)
	}
	if r.Len() != 0 {
		t.Error("refused client left an entry")
	}
}

func TestRegistry_RandomOpsKeepNamesUnique(t *testing.T) {
	r := newRegistry()
	rng := rand.New(rand.NewSource(1))
	names := []string{"a", "b", "c", "d"}
	var pool []*Client
	for i := 0; i < 40; i++ {
		if i%5 == 0 {
			pool = append(pool, viewer(t))
			continue
		}
		pool = append(pool, messenger(t, names[rng.Intn(len(names))]))
	}

	for i := 0; i < 2000; i++ {
		c := pool[rng.Intn(len(pool))]
		if rng.Intn(2) == 0 {
			r.Add(c)
		} else {
			r.Remove(c)
		}
		if err := r.consistent(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		seen := map[string]bool{}
		for _, n := range r.Names() {
			if seen[n] {
				t.Fatalf("op %d: name %q held twice", i, n)
			}
			seen[n] = true
		}
	}
}
