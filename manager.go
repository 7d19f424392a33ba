package kbot

import (
	"encoding/binary"
	"fmt"
	"net"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"
)

// Linux reserves SIGRTMIN..SIGRTMAX for realtime signals; glibc further
// reserves the first two for its own use, which is why user code
// conventionally starts allocating at 34. Go's os/signal forwards
// arbitrary realtime signal numbers on Linux, so this range is usable the
// same way the reference implementation uses it.
const (
	sigrtmin = 34
	sigrtmax = 64
)

var signalSlotCounter int32

// reserveSignalSlot claims the next realtime-signal slot from a
// process-wide monotonically increasing counter, capped at the kernel's
// realtime signal range. Exhaustion is a hard error, never a silent alias.
func reserveSignalSlot() (int, error) {
	slot := int(atomic.AddInt32(&signalSlotCounter, 1)) - 1
	if slot > sigrtmax-sigrtmin {
		atomic.AddInt32(&signalSlotCounter, -1)
		return 0, fmt.Errorf("%w: realtime signal slots exhausted", ErrResourceExhaustion)
	}
	return slot, nil
}

func releaseSignalSlot() {
	atomic.AddInt32(&signalSlotCounter, -1)
}

func setThreadName(name string) error {
	if len(name) > 15 {
		name = name[:15]
	}
	b := append([]byte(name), 0)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}

// sigsetFillExcept builds a signal set containing every signal in
// [1, sigrtmax] except the one given — the Go equivalent of
// sigfillset()+sigdelset(), used to block everything but this Manager's
// reserved slot on its pinned OS thread.
func sigsetFillExcept(except unix.Signal) unix.Sigset_t {
	var set unix.Sigset_t
	for sig := 1; sig <= sigrtmax; sig++ {
		if unix.Signal(sig) == except {
			continue
		}
		set.Val[(sig-1)/64] |= 1 << uint((sig-1)%64)
	}
	return set
}

type sigHandler func(signum int)
type timerHandler func(expirations uint64)

// Manager owns one Server and one readiness multiplexer, pinned to a
// single goroutine for its entire life. It subscribes to the server
// socket, to signals via a lazily-created signalfd, and to timers via
// timerfd, and drives the receive -> parse -> dispatch loop.
type Manager struct {
	server *Server
	epoll  *Epoll
	tomb   tomb.Tomb

	slot int

	sigFD       int
	sigSet      unix.Sigset_t
	sigHandlers map[int]sigHandler

	timerHandlers map[int]timerHandler

	logger Logger
}

// NewManager reserves a realtime-signal slot and a fresh epoll instance
// for server. Thread pinning, the signal mask and the thread name are
// applied by run, on the goroutine Start launches, not here.
func NewManager(server *Server) (*Manager, error) {
	slot, err := reserveSignalSlot()
	if err != nil {
		return nil, err
	}
	epoll, err := NewEpoll()
	if err != nil {
		releaseSignalSlot()
		return nil, err
	}
	return &Manager{
		server:        server,
		epoll:         epoll,
		slot:          slot,
		sigFD:         -1,
		sigHandlers:   make(map[int]sigHandler),
		timerHandlers: make(map[int]timerHandler),
		logger:        server.logger,
	}, nil
}

// Start launches the Manager's event loop in a tomb-supervised goroutine.
// Kill/Wait on the Manager control its lifecycle, mirroring how the
// teacher supervises its client goroutines.
func (m *Manager) Start() {
	m.tomb.Go(m.run)
}

func (m *Manager) Wait() error {
	return m.tomb.Wait()
}

func (m *Manager) Kill(reason error) {
	m.tomb.Kill(reason)
}

func (m *Manager) pinThread() error {
	runtime.LockOSThread()
	rtSignal := unix.Signal(sigrtmin + m.slot)
	set := sigsetFillExcept(rtSignal)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return fmt.Errorf("%w: pthread_sigmask: %v", ErrResourceExhaustion, err)
	}
	name := fmt.Sprintf("%d-%s", m.slot, m.server.address)
	if err := setThreadName(name); err != nil {
		m.logger.Warnf("set thread name %q: %v", name, err)
	}
	return nil
}

// RegisterSignalEvent routes sig through this Manager's signalfd to
// handler. The signalfd is created lazily on the first call.
func (m *Manager) RegisterSignalEvent(sig unix.Signal, handler sigHandler) error {
	var mask unix.Sigset_t
	mask.Val[(sig-1)/64] |= 1 << uint((sig-1)%64)

	if m.sigFD == -1 {
		fd, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
		if err != nil {
			return fmt.Errorf("%w: signalfd: %v", ErrResourceExhaustion, err)
		}
		m.sigFD = fd
		m.sigSet = mask
		m.sigHandlers[int(sig)] = handler
		return m.epoll.Register(fd, EventIn, 0, m.drainSignals)
	}

	for i := range mask.Val {
		m.sigSet.Val[i] |= mask.Val[i]
	}
	if _, err := unix.Signalfd(m.sigFD, &m.sigSet, 0); err != nil {
		return fmt.Errorf("%w: signalfd update: %v", ErrResourceExhaustion, err)
	}
	m.sigHandlers[int(sig)] = handler
	return nil
}

func (m *Manager) DeleteSignalEvent(sig unix.Signal) error {
	if _, ok := m.sigHandlers[int(sig)]; !ok {
		return fmt.Errorf("%w: signal %d not registered", ErrNoSuchCommand, sig)
	}
	delete(m.sigHandlers, int(sig))
	return nil
}

func (m *Manager) drainSignals(events Events) {
	var si unix.SignalfdSiginfo
	buf := (*[unsafe.Sizeof(si)]byte)(unsafe.Pointer(&si))[:]
	for {
		n, err := unix.Read(m.sigFD, buf)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			m.logger.Warnf("read signalfd: %v", err)
			return
		}
		if n == 0 {
			return
		}
		if handler, ok := m.sigHandlers[int(si.Signo)]; ok {
			handler(int(si.Signo))
		}
	}
}

// RegisterTimerEvent creates a disarmed timerfd and returns it; the caller
// arms it via RearmTimerEvent.
func (m *Manager) RegisterTimerEvent(clockID int, handler timerHandler) (int, error) {
	fd, err := unix.TimerfdCreate(clockID, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("%w: timerfd_create: %v", ErrResourceExhaustion, err)
	}
	m.timerHandlers[fd] = handler
	if err := m.epoll.Register(fd, EventIn, 0, func(Events) { m.drainTimer(fd) }); err != nil {
		unix.Close(fd)
		delete(m.timerHandlers, fd)
		return -1, err
	}
	return fd, nil
}

func (m *Manager) RearmTimerEvent(fd int, initial, interval time.Duration) error {
	spec := &unix.ItimerSpec{
		Value:    unix.NsecToTimespec(initial.Nanoseconds()),
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
	}
	return unix.TimerfdSettime(fd, 0, spec, nil)
}

func (m *Manager) DisarmTimerEvent(fd int) error {
	return unix.TimerfdSettime(fd, 0, &unix.ItimerSpec{}, nil)
}

func (m *Manager) DeleteTimerEvent(fd int) error {
	delete(m.timerHandlers, fd)
	if err := m.epoll.Delete(fd); err != nil {
		return err
	}
	return unix.Close(fd)
}

func (m *Manager) drainTimer(fd int) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil || n != 8 {
		return
	}
	expirations := binary.LittleEndian.Uint64(buf[:])
	if handler, ok := m.timerHandlers[fd]; ok {
		handler(expirations)
	}
}

func socketFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("%w: connection does not expose a raw fd", ErrResourceExhaustion)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
	}
	return fd, nil
}

func (m *Manager) isQuitCapable(id Identity) bool {
	return m.server.db.CapabilityMask(id)&CapQuit != 0
}

// run is the Manager's event loop: register the server socket, then repeat
// run(-1) until the visitor signals quit, an unrecoverable multiplexer
// error occurs, or the peer closes the connection.
func (m *Manager) run() error {
	if err := m.pinThread(); err != nil {
		return err
	}
	defer releaseSignalSlot()
	defer runtime.UnlockOSThread()

	fd, err := socketFD(m.server.irc.socket)
	if err != nil {
		return err
	}

	quit := false
	onReadable := func(Events) {
		buf, err := m.server.irc.Recv(1)
		if err != nil {
			m.logger.Warnf("recv: %v", err)
			quit = true
			return
		}
		if buf == nil {
			return
		}
		for _, line := range SplitLines(buf) {
			if m.server.irc.charmap != nil {
				line = decode([]byte(line), m.server.irc.charmap)
			}
			msg, err := ParseMessage(line)
			if err != nil {
				m.logger.Warnf("parse %q: %v", line, err)
				continue
			}
			variant, err := Classify(msg, m.isQuitCapable)
			if err != nil {
				continue
			}
			if m.visit(variant) {
				quit = true
				return
			}
		}
	}

	if err := m.epoll.Register(fd, EventIn, 0, onReadable); err != nil {
		return err
	}

	for !quit {
		select {
		case <-m.tomb.Dying():
			quit = true
		default:
		}
		if quit {
			break
		}
		if err := m.epoll.Run(-1); err != nil {
			return err
		}
	}

	m.epoll.Delete(fd)
	m.server.irc.Quit("worker exiting")
	m.server.irc.socket.Close()
	return nil
}

// visit applies the dispatch table to one classified variant, returning
// true iff the worker should exit its loop.
func (m *Manager) visit(v Variant) bool {
	switch vv := v.(type) {
	case PingMessage:
		if _, err := m.server.irc.Pong(vv.Token()); err != nil {
			m.logger.Warnf("PONG: %v", err)
		}
	case NickMessage:
		user, err := vv.OldUser()
		if err != nil {
			return false
		}
		newNick := strings.TrimPrefix(vv.NewNickname(), ":")
		m.server.RenameChannelMember(user.Nickname, newNick)
		if user.Nickname == m.server.Nickname() {
			m.server.UpdateNickname(user.Nickname, newNick)
		}
	case JoinMessage:
		user, err := vv.User()
		if err != nil {
			return false
		}
		if user.Nickname == m.server.Nickname() {
			m.server.UpdateJoinChannel(vv.Channel())
		} else {
			m.server.AddChannelMember(vv.Channel(), user.Nickname)
		}
	case PartMessage:
		user, err := vv.User()
		if err != nil {
			return false
		}
		if user.Nickname == m.server.Nickname() {
			m.server.UpdatePartChannel(vv.Channel())
		} else {
			m.server.RemoveChannelMember(vv.Channel(), user.Nickname)
		}
	case NamesReplyMessage:
		m.server.PopulateChannelNames(vv.Channel(), vv.Names())
	case EndOfNamesMessage:
		// Terminator only; nothing to record.
	case PrivMsgMessage:
		m.server.Dispatch(vv)
	case QuitMessage:
		return true
	}
	return false
}
