// Terminal chat client.
//
// Screens
// -------
//   stateJoin – centered form asking for a name (or viewer mode)
//   stateChat – full-screen chat with scrollable message viewport
//
// Concurrency
// -----------
//   A single goroutine reads newline-terminated lines from the TCP connection
//   and forwards them to the lines channel.  The Bubbletea event loop consumes
//   one line at a time via waitForLine (a tea.Cmd), immediately queuing the
//   next read after each line is processed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tcpchat/internal/protocol"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(cyan).
			Width(10)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	errorStyle  = lipgloss.NewStyle().Foreground(red)
	sysStyle    = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle     = lipgloss.NewStyle().Foreground(gray)
	myNameStyle = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverLineMsg []byte // a raw line arrived from the server
type disconnectedMsg struct{}

type connectedMsg struct {
	conn  net.Conn
	lines chan []byte
}

type connectErrMsg struct{ err error }

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type appState int

const (
	stateJoin appState = iota
	stateChat
)

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	addr  string
	conn  net.Conn
	lines chan []byte // goroutine → bubbletea bridge

	state    appState
	me       string // empty in viewer mode
	asViewer bool

	// Join form
	nameField textinput.Model
	statusMsg string
	joining   bool

	// Chat
	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string
	online    map[string]bool
	chatName  string

	width, height int
}

func newModel(addr string) model {
	nf := textinput.New()
	nf.Placeholder = "name"
	nf.Focus()
	nf.CharLimit = 32
	nf.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Type a message…"
	ci.CharLimit = 500

	return model{
		addr:      addr,
		state:     stateJoin,
		nameField: nf,
		chatInput: ci,
		online:    make(map[string]bool),
	}
}

// ---------------------------------------------------------------------------
// Tea interface – Init / Update
// ---------------------------------------------------------------------------

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case connectedMsg:
		m.conn, m.lines = msg.conn, msg.lines
		return m, waitForLine(m.lines)

	case connectErrMsg:
		m.joining = false
		m.statusMsg = msg.err.Error()
		return m, nil

	case serverLineMsg:
		m = m.handleServerLine([]byte(msg))
		return m, waitForLine(m.lines)

	case disconnectedMsg:
		if m.conn != nil {
			m.conn.Close()
			m.conn = nil
		}
		if m.state == stateJoin {
			// Rejected; the status line already says why.
			m.joining = false
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateJoin:
			return m.handleJoinKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

// vpHeight returns the number of lines available for the chat viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1) = 3 lines reserved
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// Key handlers
// ---------------------------------------------------------------------------

func (m model) handleJoinKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyCtrlR:
		m.asViewer = !m.asViewer
		m.statusMsg = ""
		return m, nil

	case tea.KeyEnter:
		if m.joining {
			return m, nil
		}
		name := strings.TrimSpace(m.nameField.Value())
		if !m.asViewer && name == "" {
			m.statusMsg = "a name is required"
			return m, nil
		}
		hello := protocol.ViewerHello()
		if !m.asViewer {
			hello = protocol.NameHello(name)
			m.me = name
		}
		m.joining = true
		m.statusMsg = "Joining…"
		return m, connect(m.addr, hello)
	}

	var cmd tea.Cmd
	m.nameField, cmd = m.nameField.Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		return m, tea.Quit

	case tea.KeyEnter:
		content := strings.TrimSpace(m.chatInput.Value())
		if content != "" && !m.asViewer && m.conn != nil {
			m.conn.Write(protocol.Frame(content))
			m.chatInput.Reset()
		}
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.asViewer {
		return m, nil
	}
	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// ---------------------------------------------------------------------------
// Server line handler
// ---------------------------------------------------------------------------

func (m model) handleServerLine(raw []byte) model {
	line := protocol.ParseLine(raw)
	ts := tsStyle.Render("[" + time.Now().Format("15:04:05") + "]")

	switch line.Kind {
	case protocol.KindRejected:
		m.statusMsg = "rejected: " + line.Text

	case protocol.KindWelcome:
		m.state = stateChat
		m.statusMsg = ""
		name := strings.TrimSuffix(strings.TrimPrefix(line.Text, "Welcome to the "), " chat server!")
		m.chatName = strings.Trim(name, `"`)
		if !m.asViewer {
			m.chatInput.Focus()
		}
		m.appendChat(sysStyle.Render("⚡ " + line.Text))

	case protocol.KindEntered:
		m.online[line.Name] = true
		m.appendChat(ts + " " + sysStyle.Render("→ "+line.Text))

	case protocol.KindLeft:
		delete(m.online, line.Name)
		m.appendChat(ts + " " + sysStyle.Render("← "+line.Text))

	case protocol.KindChat:
		name := peerStyle.Render(line.Name)
		if line.Name == m.me {
			name = myNameStyle.Render(line.Name)
		}
		m.appendChat(ts + " " + name + ": " + line.Text)

	default:
		m.appendChat(ts + " " + line.Text)
	}
	return m
}

// appendChat adds a rendered line and scrolls the viewport to the bottom.
func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

// ---------------------------------------------------------------------------
// Tea interface – View
// ---------------------------------------------------------------------------

func (m model) View() string {
	switch m.state {
	case stateJoin:
		return m.viewJoin()
	case stateChat:
		return m.viewChat()
	}
	return ""
}

func (m model) viewJoin() string {
	if m.width == 0 {
		return "\n  Starting…"
	}

	mode, other := "Join", "viewer mode"
	field := labelStyle.Render("Name") + "  " + m.nameField.View()
	if m.asViewer {
		mode, other = "Watch", "named mode"
		field = hintStyle.Render("Viewer mode: you will only read the chat.")
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("  Go Chat Terminal  "),
		"",
		field,
		"",
		hintStyle.Render(fmt.Sprintf("Enter: %s   Ctrl+R: switch to %s", mode, other)),
		hintStyle.Render("Ctrl+C: quit"),
		"",
		m.renderStatus(),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	who := m.me
	if m.asViewer {
		who = "viewer"
	}
	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" %s  ·  %s  ·  %d seen online  ·  PgUp/Dn: Scroll  Ctrl+C: Quit",
			m.chatName, who, len(m.online)))

	input := m.chatInput.View()
	if m.asViewer {
		input = hintStyle.Render("read-only")
	}
	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(input)

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// renderStatus renders the join status line with appropriate colour.
func (m model) renderStatus() string {
	if m.statusMsg == "" {
		return ""
	}
	if m.joining {
		return hintStyle.Render(m.statusMsg)
	}
	return errorStyle.Render(m.statusMsg)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// connect dials addr, sends the handshake line and starts the reader goroutine.
func connect(addr string, hello []byte) tea.Cmd {
	return func() tea.Msg {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return connectErrMsg{fmt.Errorf("connect: %w", err)}
		}
		if _, err := conn.Write(hello); err != nil {
			conn.Close()
			return connectErrMsg{fmt.Errorf("handshake: %w", err)}
		}

		// Reader goroutine: TCP → lines channel.
		lines := make(chan []byte, 64)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				line := make([]byte, len(scanner.Bytes()))
				copy(line, scanner.Bytes())
				lines <- line
			}
		}()
		return connectedMsg{conn: conn, lines: lines}
	}
}

// waitForLine returns a tea.Cmd that blocks until the next line arrives on ch.
// When ch is closed (server disconnected), it returns disconnectedMsg.
func waitForLine(ch <-chan []byte) tea.Cmd {
	return func() tea.Msg {
		data, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverLineMsg(data)
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	addr := flag.String("addr", "localhost:6000", "server address")
	flag.Parse()

	m := newModel(*addr)
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // use the alternate screen buffer
		tea.WithMouseCellMotion(), // enable mouse wheel scrolling
	)
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if fm, ok := final.(model); ok && fm.conn != nil {
		fm.conn.Close()
	}
}
