//go:build linux

package kbot

import (
	"fmt"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Events is the readiness mask a callback is invoked for.
type Events uint32

const (
	EventIn    Events = unix.EPOLLIN
	EventOut   Events = unix.EPOLLOUT
	EventRdHup Events = unix.EPOLLRDHUP
	EventPri   Events = unix.EPOLLPRI
)

// EpollConfig carries the edge/oneshot/wakeup/exclusive bits, kept apart
// from Events so modify_events and modify_config can't clobber each
// other's half of the epoll_event.events word.
type EpollConfig uint32

const (
	ConfigEdgeTriggered EpollConfig = unix.EPOLLET
	ConfigOneshot       EpollConfig = unix.EPOLLONESHOT
	ConfigWakeup        EpollConfig = unix.EPOLLWAKEUP
	ConfigExclusive     EpollConfig = unix.EPOLLEXCLUSIVE
)

// Callback is invoked with the events that were actually reported ready.
type Callback func(events Events)

type epollEntry struct {
	events  Events
	config  EpollConfig
	enabled bool
	cb      Callback
}

// Epoll wraps one epoll instance: fd registration, pre/post/exit hooks,
// and a run-one-tick event loop.
type Epoll struct {
	fd int

	mu      sync.Mutex
	entries map[int]*epollEntry

	Pre  []func()
	Post []func()
	Exit []func()
}

// NewEpoll creates a fresh epoll instance.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: epoll_create1: %v", ErrResourceExhaustion, err)
	}
	return &Epoll{fd: fd, entries: make(map[int]*epollEntry)}, nil
}

// Close runs the Exit hooks, in registration order, and closes the epoll
// fd.
func (e *Epoll) Close() error {
	for _, hook := range e.Exit {
		hook()
	}
	return unix.Close(e.fd)
}

func (e *epollEntry) epollEvents() uint32 {
	if !e.enabled {
		return 0
	}
	return uint32(e.events) | uint32(e.config)
}

// Register adds fd with the given events/config and callback, enabled by
// default. It fails if fd is already registered.
func (e *Epoll) Register(fd int, events Events, config EpollConfig, cb Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[fd]; ok {
		return fmt.Errorf("%w: fd %d already registered", ErrResourceExhaustion, fd)
	}
	entry := &epollEntry{events: events, config: config, enabled: true, cb: cb}
	ev := &unix.EpollEvent{Events: entry.epollEvents(), Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("%w: epoll_ctl add fd %d: %v", ErrResourceExhaustion, fd, err)
	}
	e.entries[fd] = entry
	return nil
}

func (e *Epoll) modify(fd int) error {
	entry, ok := e.entries[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d not registered", ErrNoSuchChannel, fd)
	}
	ev := &unix.EpollEvent{Events: entry.epollEvents(), Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, ev)
}

// Enable re-attaches fd to the readiness set without losing its callback.
func (e *Epoll) Enable(fd int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d not registered", ErrNoSuchChannel, fd)
	}
	entry.enabled = true
	return e.modify(fd)
}

// Disable detaches fd from the readiness set without forgetting it.
func (e *Epoll) Disable(fd int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d not registered", ErrNoSuchChannel, fd)
	}
	entry.enabled = false
	return e.modify(fd)
}

// ModifyEvents replaces fd's readiness mask, preserving its config bits.
// Passing config bits in events is rejected.
func (e *Epoll) ModifyEvents(fd int, events Events) error {
	if uint32(events)&uint32(ConfigEdgeTriggered|ConfigOneshot|ConfigWakeup|ConfigExclusive) != 0 {
		return fmt.Errorf("%w: config bits passed as events", ErrResourceExhaustion)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d not registered", ErrNoSuchChannel, fd)
	}
	entry.events = events
	return e.modify(fd)
}

// ModifyConfig replaces fd's edge/oneshot/wakeup/exclusive bits, preserving
// its event mask. Exclusive may not be set this way — it's add-only in the
// kernel. Passing event bits in config is rejected.
func (e *Epoll) ModifyConfig(fd int, config EpollConfig) error {
	if uint32(config)&uint32(EventIn|EventOut|EventRdHup|EventPri) != 0 {
		return fmt.Errorf("%w: event bits passed as config", ErrResourceExhaustion)
	}
	if config&ConfigExclusive != 0 {
		return fmt.Errorf("%w: Exclusive cannot be set via modify_config", ErrResourceExhaustion)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d not registered", ErrNoSuchChannel, fd)
	}
	entry.config = config
	return e.modify(fd)
}

// ModifyCallback replaces fd's callback slot.
func (e *Epoll) ModifyCallback(fd int, cb Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d not registered", ErrNoSuchChannel, fd)
	}
	entry.cb = cb
	return nil
}

// Delete removes fd's entry and kernel registration.
func (e *Epoll) Delete(fd int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[fd]; !ok {
		return fmt.Errorf("%w: fd %d not registered", ErrNoSuchChannel, fd)
	}
	delete(e.entries, fd)
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

const maxEpollEvents = 64

// Run executes the Pre hooks, waits once for readiness (retrying on
// EINTR), invokes each ready and enabled fd's callback, then runs the Post
// hooks. A readiness report for an fd absent from the table is a policy
// violation and fails the tick.
func (e *Epoll) Run(timeoutMs int) error {
	for _, hook := range e.Pre {
		hook()
	}

	var events [maxEpollEvents]unix.EpollEvent
	var n int
	var err error
	for {
		n, err = unix.EpollWait(e.fd, events[:], timeoutMs)
		if err == nil || err != syscall.EINTR {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%w: epoll_wait: %v", ErrResourceExhaustion, err)
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		e.mu.Lock()
		entry, ok := e.entries[fd]
		e.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: readiness report for unregistered fd %d", ErrResourceExhaustion, fd)
		}
		if !entry.enabled {
			continue
		}
		entry.cb(Events(events[i].Events))
	}

	for _, hook := range e.Post {
		hook()
	}
	return nil
}
