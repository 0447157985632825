// Package protocol defines the wire format for all client-server communication.
// Every payload in either direction is a single line of UTF-8 text terminated
// by a newline character (\n).
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const (
	// NamePrefix introduces a messenger handshake: "name:<NAME>".
	NamePrefix = "name:"
	// ViewerToken is the whole handshake line of a read-only client.
	ViewerToken = "viewer"

	// Terminator ends every line on the wire.
	Terminator = '\n'
)

var (
	// ErrEmptyName is returned for "name:" followed by nothing but whitespace.
	ErrEmptyName = errors.New("protocol: empty name")
	// ErrUnrecognized is returned for a handshake line matching no grammar rule.
	ErrUnrecognized = errors.New("protocol: unrecognized handshake")
)

// ---------------------------------------------------------------------------
// Handshake
// ---------------------------------------------------------------------------

// Role is the capability set a client is admitted with.
type Role int

const (
	// RoleMessenger clients send and receive chat lines.
	RoleMessenger Role = iota
	// RoleViewer clients only receive.
	RoleViewer
)

// CanSend reports whether lines from a client with this role are broadcast.
func (r Role) CanSend() bool { return r == RoleMessenger }

func (r Role) String() string {
	switch r {
	case RoleMessenger:
		return "messenger"
	case RoleViewer:
		return "viewer"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Hello is a parsed handshake line.
type Hello struct {
	Role Role
	Name string // empty for viewers
}

// ParseHello interprets the first line a client sends. The line terminator,
// if present, is ignored.
func ParseHello(line []byte) (Hello, error) {
	s := DecodeText(TrimEOL(line))
	switch {
	case s == ViewerToken:
		return Hello{Role: RoleViewer}, nil
	case strings.HasPrefix(s, NamePrefix):
		name := strings.TrimSpace(s[len(NamePrefix):])
		if name == "" {
			return Hello{}, ErrEmptyName
		}
		return Hello{Role: RoleMessenger, Name: name}, nil
	default:
		return Hello{}, ErrUnrecognized
	}
}

// NameHello returns the handshake line for a messenger called name.
func NameHello(name string) []byte {
	return Frame(NamePrefix + name)
}

// ViewerHello returns the handshake line for a viewer.
func ViewerHello() []byte {
	return Frame(ViewerToken)
}

// ---------------------------------------------------------------------------
// Server lines
// ---------------------------------------------------------------------------

const (
	enteredSuffix = " has entered the chat."
	leftSuffix    = " has left the chat."
	chatSep       = ": "
	rejectPrefix  = "rejected: "
	welcomePrefix = "Welcome to the "
)

// ChatLine formats a chat line from a registered messenger.
func ChatLine(name, text string) string { return name + chatSep + text }

// EnteredLine announces a new messenger.
func EnteredLine(name string) string { return name + enteredSuffix }

// LeftLine announces a departed messenger.
func LeftLine(name string) string { return name + leftSuffix }

// WelcomeLine greets a newly admitted client.
func WelcomeLine(chatName string) string {
	return fmt.Sprintf("%s%q chat server!", welcomePrefix, chatName)
}

// RejectedLine tells a client why its handshake failed.
func RejectedLine(reason string) string { return rejectPrefix + reason }

// Frame appends the line terminator to s.
func Frame(s string) []byte {
	b := make([]byte, 0, len(s)+1)
	b = append(b, s...)
	return append(b, Terminator)
}

// TrimEOL strips a trailing "\n" or "\r\n".
func TrimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{Terminator})
	return bytes.TrimSuffix(b, []byte{'\r'})
}

// DecodeText decodes b as UTF-8. Invalid sequences become U+FFFD, so the
// result is always valid UTF-8.
func DecodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(out)
}

// ---------------------------------------------------------------------------
// Client-side classification
// ---------------------------------------------------------------------------

// LineKind classifies a line received from the server.
type LineKind int

const (
	KindOther LineKind = iota
	KindChat
	KindEntered
	KindLeft
	KindWelcome
	KindRejected
)

// Line is a server line split into its parts.
type Line struct {
	Kind LineKind
	Name string // sender or subject, when the kind carries one
	Text string // chat text, rejection reason or the raw line
}

// ParseLine classifies a server line. Names containing ": " make chat lines
// ambiguous; the first separator wins.
func ParseLine(raw []byte) Line {
	s := DecodeText(TrimEOL(raw))
	switch {
	case strings.HasPrefix(s, rejectPrefix):
		return Line{Kind: KindRejected, Text: s[len(rejectPrefix):]}
	case strings.HasPrefix(s, welcomePrefix) && strings.HasSuffix(s, " chat server!"):
		return Line{Kind: KindWelcome, Text: s}
	case strings.HasSuffix(s, enteredSuffix):
		return Line{Kind: KindEntered, Name: strings.TrimSuffix(s, enteredSuffix), Text: s}
	case strings.HasSuffix(s, leftSuffix):
		return Line{Kind: KindLeft, Name: strings.TrimSuffix(s, leftSuffix), Text: s}
	}
	if i := strings.Index(s, chatSep); i > 0 {
		return Line{Kind: KindChat, Name: s[:i], Text: s[i+len(chatSep):]}
	}
	return Line{Kind: KindOther, Text: s}
}
