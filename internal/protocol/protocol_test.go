package protocol

import (
	"errors"
	"testing"
)

func TestParseHello(t *testing.T) {
	cases := []struct {
		line    string
		want    Hello
		wantErr error
	}{
		{"name:alice\n", Hello{Role: RoleMessenger, Name: "alice"}, nil},
		{"name:alice\r\n", Hello{Role: RoleMessenger, Name: "alice"}, nil},
		{"name:alice", Hello{Role: RoleMessenger, Name: "alice"}, nil},
		{"name:  bob  \n", Hello{Role: RoleMessenger, Name: "bob"}, nil},
		{"name:a:b\n", Hello{Role: RoleMessenger, Name: "a:b"}, nil},
		{"name:世界\n", Hello{Role: RoleMessenger, Name: "世界"}, nil},
		{"viewer\n", Hello{Role: RoleViewer}, nil},
		{"name:\n", Hello{}, ErrEmptyName},
		{"name:   \n", Hello{}, ErrEmptyName},
		{"hello\n", Hello{}, ErrUnrecognized},
		{"Name:alice\n", Hello{}, ErrUnrecognized},
		{"viewers\n", Hello{}, ErrUnrecognized},
		{"\n", Hello{}, ErrUnrecognized},
	}
	for _, c := range cases {
		got, err := ParseHello([]byte(c.line))
		if !errors.Is(err, c.wantErr) {
			t.Errorf("ParseHello(%q): error %v, want %v", c.line, err, c.wantErr)
			continue
		}
		if got != c.want {
			t.Errorf("ParseHello(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestHelloRoundTrip(t *testing.T) {
	h, err := ParseHello(NameHello("carol"))
	if err != nil || h.Name != "carol" || h.Role != RoleMessenger {
		t.Fatalf("NameHello did not parse back: %+v %v", h, err)
	}
	h, err = ParseHello(ViewerHello())
	if err != nil || h.Role != RoleViewer {
		t.Fatalf("ViewerHello did not parse back: %+v %v", h, err)
	}
}

func TestRoleCanSend(t *testing.T) {
	if !RoleMessenger.CanSend() {
		t.Error("messenger must be able to send")
	}
	if RoleViewer.CanSend() {
		t.Error("viewer must not be able to send")
	}
}

func TestServerLines(t *testing.T) {
	if got := ChatLine("alice", "hi"); got != "alice: hi" {
		t.Errorf("ChatLine = %q", got)
	}
	if got := EnteredLine("alice"); got != "alice has entered the chat." {
		t.Errorf("EnteredLine = %q", got)
	}
	if got := LeftLine("bob"); got != "bob has left the chat." {
		t.Errorf("LeftLine = %q", got)
	}
	if got := WelcomeLine("Lobby"); got != `Welcome to the "Lobby" chat server!` {
		t.Errorf("WelcomeLine = %q", got)
	}
	if got := string(Frame("x")); got != "x\n" {
		t.Errorf("Frame = %q", got)
	}
}

func TestDecodeText(t *testing.T) {
	if got := DecodeText([]byte("Hello, 世界")); got != "Hello, 世界" {
		t.Errorf("valid input changed: %q", got)
	}
	got := DecodeText([]byte{'a', 0xff, 'b'})
	if got != "a�b" {
		t.Errorf("invalid byte: got %q", got)
	}
	// truncated three-byte sequence
	got = DecodeText([]byte{226, 140})
	if got == "" || got[len(got)-3:] != "�" {
		t.Errorf("truncated rune: got %q", got)
	}
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		raw  string
		want Line
	}{
		{"alice: hi there\n", Line{Kind: KindChat, Name: "alice", Text: "hi there"}},
		{"alice: a: b\n", Line{Kind: KindChat, Name: "alice", Text: "a: b"}},
		{"bob has entered the chat.\n", Line{Kind: KindEntered, Name: "bob", Text: "bob has entered the chat."}},
		{"bob has left the chat.\n", Line{Kind: KindLeft, Name: "bob", Text: "bob has left the chat."}},
		{"rejected: name taken\n", Line{Kind: KindRejected, Text: "name taken"}},
		{`Welcome to the "X" chat server!` + "\n", Line{Kind: KindWelcome, Text: `Welcome to the "X" chat server!`}},
		{"plain\n", Line{Kind: KindOther, Text: "plain"}},
	}
	for _, c := range cases {
		if got := ParseLine([]byte(c.raw)); got != c.want {
			t.Errorf("ParseLine(%q) = %+v, want %+v", c.raw, got, c.want)
		}
	}
}
