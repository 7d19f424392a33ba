package kbot

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

// newDispatchTestServer is like newTestServer but hands back the raw lines
// written to the wire instead of silently draining them, so dispatch tests
// can assert on the reply a command produced.
func newDispatchTestServer(t *testing.T) (*Server, <-chan string) {
	t.Helper()
	client, peer := net.Pipe()
	t.Cleanup(func() { client.Close(); peer.Close() })

	lines := make(chan string, 16)
	go func() {
		r := bufio.NewReader(peer)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				lines <- strings.TrimRight(strings.TrimPrefix(line, "\r"), "\r\n")
			}
			if err != nil {
				return
			}
		}
	}()

	s := &Server{
		irc:          NewIRC(client, nil),
		address:      "irc.test",
		port:         "6667",
		nickname:     "kbot",
		channels:     make(map[string]*Channel),
		userCommands: make(map[string]builtin),
		pluginKeys:   make(map[string][]string),
		plugins:      make(map[string]*PluginHandle),
		db:           NewMemoryCredentialStore(),
		logger:       nopLogger{},
	}
	return s, lines
}

func recvLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a wire line")
		return ""
	}
}

func privMsg(t *testing.T, s *Server, source, channel, text string) {
	t.Helper()
	msg, err := ParseMessage(":" + source + " PRIVMSG " + channel + " :" + text)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	s.Dispatch(PrivMsgMessage{msg})
}

func TestDispatchBuiltinHi(t *testing.T) {
	s, lines := newDispatchTestServer(t)
	privMsg(t, s, "demsh!~demsh@host", "#chan", ",hi")
	if got, want := recvLine(t, lines), "PRIVMSG #chan :demsh: Hello!"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDispatchUnknownCommandIsSilent(t *testing.T) {
	s, lines := newDispatchTestServer(t)
	privMsg(t, s, "demsh!~demsh@host", "#chan", ",nosuchcommand")
	select {
	case line := <-lines:
		t.Fatalf("expected no reply, got %q", line)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	s, lines := newDispatchTestServer(t)
	privMsg(t, s, "demsh!~demsh@host", "#chan", ",join #other")
	if got, want := recvLine(t, lines), "PRIVMSG #chan :demsh: Error: Permission denied."; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDispatchArgumentCount(t *testing.T) {
	s, lines := newDispatchTestServer(t)
	invoker := Identity{Nickname: "demsh", Username: "~demsh", Hostname: "host"}
	s.db.(*MemoryCredentialStore).Grant(invoker, CapJoin)

	privMsg(t, s, invoker.String(), "#chan", ",join")

	if got, want := recvLine(t, lines), "PRIVMSG #chan :demsh: Incorrect number of arguments, expected 1-1."; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDispatchJoinWithCapability(t *testing.T) {
	s, lines := newDispatchTestServer(t)
	invoker := Identity{Nickname: "demsh", Username: "~demsh", Hostname: "host"}
	s.db.(*MemoryCredentialStore).Grant(invoker, CapJoin)

	privMsg(t, s, invoker.String(), "#chan", ",join #new")

	if got, want := recvLine(t, lines), "JOIN #new"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	s.mu.Lock()
	_, ok := s.channels["#new"]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("#new was not added to the channel map")
	}
}

func TestDispatchPrivateReplyTargetsInvoker(t *testing.T) {
	s, lines := newDispatchTestServer(t)
	privMsg(t, s, "demsh!~demsh@host", "kbot", ",hi")
	if got, want := recvLine(t, lines), "PRIVMSG demsh :demsh: Hello!"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
