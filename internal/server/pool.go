package server

import (
	"net"
	"sync"
)

// handshakePool runs handshakes on a fixed set of goroutines so a flood of
// silent connections cannot spawn unbounded readers.
type handshakePool struct {
	jobs chan net.Conn
	wg   sync.WaitGroup
}

func newHandshakePool(workers, backlog int, handle func(net.Conn)) *handshakePool {
	p := &handshakePool{
		jobs: make(chan net.Conn, backlog),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for conn := range p.jobs {
				handle(conn)
			}
		}()
	}
	return p
}

// submit queues conn without blocking and reports whether it was accepted.
// A refused connection is the caller's to close.
func (p *handshakePool) submit(conn net.Conn) bool {
	select {
	case p.jobs <- conn:
		return true
	default:
		return false
	}
}

// stop waits for queued handshakes to finish. No submit may follow.
func (p *handshakePool) stop() {
	close(p.jobs)
	p.wg.Wait()
}
