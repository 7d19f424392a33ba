//go:build linux

package kbot

import (
	"os"
	"testing"
	"time"
)

func TestEpollRegisterDeleteRejectsUnknownFD(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer e.Close()

	if err := e.Delete(999); err == nil {
		t.Fatalf("expected Delete of an unregistered fd to fail")
	}
	if err := e.Enable(999); err == nil {
		t.Fatalf("expected Enable of an unregistered fd to fail")
	}
	if err := e.Disable(999); err == nil {
		t.Fatalf("expected Disable of an unregistered fd to fail")
	}
}

func TestEpollRegisterTwiceFails(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer e.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe failed: %v", err)
	}
	defer r.Close()
	defer w.Close()

	fd := int(r.Fd())
	if err := e.Register(fd, EventIn, 0, func(Events) {}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := e.Register(fd, EventIn, 0, func(Events) {}); err == nil {
		t.Fatalf("expected second Register of the same fd to fail")
	}
}

func TestEpollRunInvokesCallbackOnReadable(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer e.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe failed: %v", err)
	}
	defer r.Close()
	defer w.Close()

	fired := make(chan Events, 1)
	if err := e.Register(int(r.Fd()), EventIn, 0, func(ev Events) { fired <- ev }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	w.Write([]byte("x"))

	if err := e.Run(1000); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	select {
	case ev := <-fired:
		if ev&EventIn == 0 {
			t.Fatalf("callback fired with events %v, want EventIn set", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("callback never fired for a readable fd")
	}
}

func TestEpollDisableSuppressesCallback(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer e.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe failed: %v", err)
	}
	defer r.Close()
	defer w.Close()

	called := false
	if err := e.Register(int(r.Fd()), EventIn, 0, func(Events) { called = true }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := e.Disable(int(r.Fd())); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	w.Write([]byte("x"))
	if err := e.Run(200); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if called {
		t.Fatalf("callback fired for a disabled fd")
	}
}

func TestEpollModifyEventsRejectsConfigBits(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer e.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe failed: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if err := e.Register(int(r.Fd()), EventIn, 0, func(Events) {}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := e.ModifyEvents(int(r.Fd()), Events(ConfigEdgeTriggered)); err == nil {
		t.Fatalf("expected ModifyEvents to reject a config bit")
	}
}

func TestEpollModifyConfigRejectsExclusive(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatalf("NewEpoll failed: %v", err)
	}
	defer e.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe failed: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if err := e.Register(int(r.Fd()), EventIn, 0, func(Events) {}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := e.ModifyConfig(int(r.Fd()), ConfigExclusive); err == nil {
		t.Fatalf("expected ModifyConfig to reject Exclusive")
	}
}
