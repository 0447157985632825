package server

import (
	"errors"
	"io"
	"net"
)

// partCause describes why a client was pruned.
type partCause int

const (
	_ partCause = iota
	causeLeft
	causeTimeout
	causeFault
)

func (p partCause) String() string {
	switch p {
	case causeLeft:
		return "left"
	case causeTimeout:
		return "timed out"
	case causeFault:
		return "faulted"
	default:
		return "unknown"
	}
}

// detectDisconnect reports whether c is dead: a pump recorded a fault and no
// complete line is left in the mailbox. A client that sent lines and then
// hung up stays alive until those lines have been collected.
func detectDisconnect(c *Client) (dead bool, cause partCause) {
	err := c.drainedFault()
	if err == nil {
		return false, 0
	}
	return true, classifyFault(err)
}

func classifyFault(err error) partCause {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return causeLeft
	case errors.As(err, &netErr) && netErr.Timeout():
		return causeTimeout
	default:
		return causeFault
	}
}
