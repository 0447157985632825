package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	"tcpchat/internal/protocol"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyFault(t *testing.T) {
	cases := []struct {
		err  error
		want partCause
	}{
		{io.EOF, causeLeft},
		{fmt.Errorf("read: %w", io.EOF), causeLeft},
		{net.ErrClosed, causeLeft},
		{timeoutErr{}, causeTimeout},
		{&net.OpError{Op: "read", Err: timeoutErr{}}, causeTimeout},
		{errors.New("connection reset by peer"), causeFault},
	}
	for _, c := range cases {
		if got := classifyFault(c.err); got != c.want {
			t.Errorf("classifyFault(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestDetectDisconnect_WaitsForMailbox(t *testing.T) {
	c := pipeClient(t, protocol.Hello{Role: protocol.RoleMessenger, Name: "alice"})
	c.park([]byte("still here"))

	if dead, _ := detectDisconnect(c); dead {
		t.Fatal("healthy client reported dead")
	}

	c.setFault(io.EOF)
	c.setFault(errors.New("later fault"))
	if dead, _ := detectDisconnect(c); dead {
		t.Fatal("client with unread lines reported dead")
	}
	if dead, _ := detectDisconnect(c); dead {
		t.Fatal("repeated check changed the verdict")
	}
	if lines := c.takeLines(); len(lines) != 1 || string(lines[0]) != "still here" {
		t.Fatalf("liveness check consumed input: %q", lines)
	}

	dead, cause := detectDisconnect(c)
	if !dead || cause != causeLeft {
		t.Fatalf("got dead=%v cause=%v, want dead by %v", dead, cause, causeLeft)
	}
}

func TestReadPump_RecordsEOF(t *testing.T) {
	peer, srv := net.Pipe()
	c := newClientForTest(srv, "alice")
	done := make(chan struct{})
	go func() {
		c.readPump(0)
		close(done)
	}()

	peer.Write([]byte("hello\npart"))
	peer.Close()
	<-done

	if dead, _ := detectDisconnect(c); dead {
		t.Fatal("dead before its last line was collected")
	}
	lines := c.takeLines()
	if len(lines) != 1 || string(lines[0]) != "hello" {
		t.Errorf("mailbox = %q, want only the terminated line", lines)
	}
	if dead, cause := detectDisconnect(c); !dead || cause != causeLeft {
		t.Fatalf("got dead=%v cause=%v after peer close", dead, cause)
	}
}

func TestReadPump_KeepsCarriageReturnAtSplit(t *testing.T) {
	peer, srv := net.Pipe()
	hello := protocol.Hello{Role: protocol.RoleMessenger, Name: "alice"}
	// 16 is the smallest buffer bufio allows.
	c := newClient(srv, bufio.NewReaderSize(srv, 16), hello, 4)
	done := make(chan struct{})
	go func() {
		c.readPump(0)
		close(done)
	}()

	long := strings.Repeat("a", 15) + "\r"
	peer.Write([]byte(long + "tail\r\n"))
	peer.Close()
	<-done

	lines := c.takeLines()
	want := []string{long, "tail"}
	if len(lines) != len(want) {
		t.Fatalf("mailbox = %q, want %q", lines, want)
	}
	for i := range want {
		if string(lines[i]) != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
