package kbot

import (
	"testing"

	"golang.org/x/sys/unix"
)

func newTestManager(t *testing.T, s *Server) *Manager {
	t.Helper()
	m, err := NewManager(s)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() {
		releaseSignalSlot()
		m.epoll.Close()
	})
	return m
}

func TestSigsetFillExceptExcludesGivenSignal(t *testing.T) {
	except := unix.Signal(sigrtmin + 3)
	set := sigsetFillExcept(except)

	for sig := 1; sig <= sigrtmax; sig++ {
		bit := set.Val[(sig-1)/64]&(1<<uint((sig-1)%64)) != 0
		want := unix.Signal(sig) != except
		if bit != want {
			t.Fatalf("signal %d: set bit = %v, want %v", sig, bit, want)
		}
	}
}

func TestReserveSignalSlotExhaustion(t *testing.T) {
	max := sigrtmax - sigrtmin + 1
	reserved := 0
	defer func() {
		for i := 0; i < reserved; i++ {
			releaseSignalSlot()
		}
	}()

	for i := 0; i < max; i++ {
		if _, err := reserveSignalSlot(); err != nil {
			t.Fatalf("reserveSignalSlot failed before exhaustion at i=%d: %v", i, err)
		}
		reserved++
	}
	if _, err := reserveSignalSlot(); err == nil {
		t.Fatalf("expected reserveSignalSlot to fail once every slot is taken")
	}
}

func TestIsQuitCapable(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)

	invoker := Identity{Nickname: "demsh", Username: "~demsh", Hostname: "host"}
	if m.isQuitCapable(invoker) {
		t.Fatalf("isQuitCapable = true before granting CapQuit")
	}
	s.db.(*MemoryCredentialStore).Grant(invoker, CapQuit)
	if !m.isQuitCapable(invoker) {
		t.Fatalf("isQuitCapable = false after granting CapQuit")
	}
}

func TestVisitPingRepliesWithPong(t *testing.T) {
	s, lines := newDispatchTestServer(t)
	m := newTestManager(t, s)

	msg := mustParse(t, "PING :token123")
	quit := m.visit(PingMessage{msg})
	if quit {
		t.Fatalf("visit(PingMessage) reported quit")
	}
	if got, want := recvLine(t, lines), "PONG :token123"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestVisitJoinOwnNickAdvancesChannelState(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)
	s.JoinChannel("#kbot")

	msg := mustParse(t, ":kbot!~kbot@host JOIN #kbot")
	m.visit(JoinMessage{msg})

	s.mu.Lock()
	state := s.channels["#kbot"].state
	s.mu.Unlock()
	if state != Joined {
		t.Fatalf("state = %v, want Joined", state)
	}
}

func TestVisitJoinOtherUserAddsMember(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)
	s.JoinChannel("#kbot")
	s.UpdateJoinChannel("#kbot")

	msg := mustParse(t, ":demsh!~demsh@host JOIN #kbot")
	m.visit(JoinMessage{msg})

	s.mu.Lock()
	ch := s.channels["#kbot"]
	s.mu.Unlock()
	if !ch.names.Has("demsh") {
		t.Fatalf("demsh not added as a member via visit(JoinMessage)")
	}
}

func TestVisitPartOtherUserRemovesMember(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)
	s.JoinChannel("#kbot")
	s.UpdateJoinChannel("#kbot")
	s.AddChannelMember("#kbot", "demsh")

	msg := mustParse(t, ":demsh!~demsh@host PART #kbot")
	m.visit(PartMessage{msg})

	s.mu.Lock()
	ch := s.channels["#kbot"]
	s.mu.Unlock()
	if ch.names.Has("demsh") {
		t.Fatalf("demsh still a member after visit(PartMessage)")
	}
}

func TestVisitPartOwnNickRemovesChannel(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)
	s.JoinChannel("#kbot")
	s.UpdateJoinChannel("#kbot")
	s.PartChannel("#kbot")

	msg := mustParse(t, ":kbot!~kbot@host PART #kbot")
	m.visit(PartMessage{msg})

	s.mu.Lock()
	_, ok := s.channels["#kbot"]
	s.mu.Unlock()
	if ok {
		t.Fatalf("channel still present after visit(PartMessage) for the bot's own part")
	}
}

func TestVisitNickRenamesMemberEverywhere(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)
	s.JoinChannel("#kbot")
	s.UpdateJoinChannel("#kbot")
	s.AddChannelMember("#kbot", "demsh")

	msg := mustParse(t, ":demsh!~demsh@host NICK :demsh2")
	m.visit(NickMessage{msg})

	s.mu.Lock()
	ch := s.channels["#kbot"]
	s.mu.Unlock()
	if ch.names.Has("demsh") || !ch.names.Has("demsh2") {
		t.Fatalf("rename via visit(NickMessage) didn't move demsh -> demsh2: %v", ch.Names())
	}
}

func TestVisitNickOwnRenameUpdatesNickname(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)

	msg := mustParse(t, ":kbot!~kbot@host NICK :newkbot")
	m.visit(NickMessage{msg})

	if got := s.Nickname(); got != "newkbot" {
		t.Fatalf("Nickname() = %q, want newkbot", got)
	}
}

func TestVisitNamesReplyPopulatesMembers(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)
	s.JoinChannel("#kbot")
	s.UpdateJoinChannel("#kbot")

	msg := mustParse(t, ":irc.demsh.org 353 kbot = #kbot :kbot @demsh +voiced")
	v, err := Classify(msg, nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if quit := m.visit(v); quit {
		t.Fatalf("visit(NamesReplyMessage) reported quit")
	}

	s.mu.Lock()
	ch := s.channels["#kbot"]
	s.mu.Unlock()
	for _, name := range []string{"kbot", "demsh", "voiced"} {
		if !ch.names.Has(name) {
			t.Fatalf("expected %q among channel members, got %v", name, ch.Names())
		}
	}
}

func TestVisitEndOfNamesIsNoop(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)

	msg := mustParse(t, ":irc.demsh.org 366 kbot #kbot :End of /NAMES list.")
	v, err := Classify(msg, nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if quit := m.visit(v); quit {
		t.Fatalf("visit(EndOfNamesMessage) reported quit")
	}
}

func TestVisitQuitReportsTrue(t *testing.T) {
	s := newTestServer(t)
	m := newTestManager(t, s)

	msg := mustParse(t, ":demsh!~demsh@host QUIT :bye")
	if quit := m.visit(QuitMessage{msg}); !quit {
		t.Fatalf("visit(QuitMessage) = false, want true")
	}
}
