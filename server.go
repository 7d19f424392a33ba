package kbot

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// ConnState is a Server's position in its connection lifecycle.
type ConnState int32

const (
	Setup ConnState = iota
	Connected
	LoggedIn
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Setup:
		return "Setup"
	case Connected:
		return "Connected"
	case LoggedIn:
		return "LoggedIn"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Server is one connection's mutable state, exclusively owned by the
// Manager running on its goroutine. The only fields touched off that
// goroutine are state (atomic, for external observation) and
// userCommands (guarded, so a built-in load/unload can mutate it mid
// dispatch; see Dispatch).
type Server struct {
	irc     *IRC
	address string
	port    string

	state atomic.Int32

	mu       sync.Mutex
	nickname string
	channels map[string]*Channel

	commandsMu   sync.RWMutex
	userCommands map[string]builtin
	pluginKeys   map[string][]string

	plugins map[string]*PluginHandle

	db     CredentialStore
	logger Logger
}

// ConnectionNew resolves address:port, opens the socket, runs the login
// sequence, and sends JOIN for the configured channel, returning the
// Server in LoggedIn state. The Connected and LoggedIn transitions are
// made here, not by the Manager. Callers move it into a Manager exactly
// once.
func ConnectionNew(opts ...Option) (*Server, error) {
	conf := defaultConfig()
	for _, opt := range opts {
		opt(&conf)
	}
	if conf.address == "" || conf.port == "" {
		return nil, fmt.Errorf("%w: address and port are required", ErrResourceExhaustion)
	}

	socket, err := net.Dial("tcp", net.JoinHostPort(conf.address, conf.port))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s:%s: %v", ErrTransport, conf.address, conf.port, err)
	}

	s := &Server{
		irc:          NewIRC(socket, conf.charmap),
		address:      conf.address,
		port:         conf.port,
		nickname:     conf.nickname,
		channels:     make(map[string]*Channel),
		userCommands: make(map[string]builtin),
		pluginKeys:   make(map[string][]string),
		plugins:      make(map[string]*PluginHandle),
		db:           conf.db,
		logger:       conf.logger,
	}
	s.state.Store(int32(Connected))

	if _, err := s.irc.Login(conf.nickname, conf.password); err != nil {
		s.state.Store(int32(Failed))
		return nil, fmt.Errorf("%w: login: %v", ErrTransport, err)
	}
	s.state.Store(int32(LoggedIn))

	if conf.channel != "" {
		s.JoinChannel(conf.channel)
	}

	return s, nil
}

func (s *Server) State() ConnState {
	return ConnState(s.state.Load())
}

func (s *Server) setState(state ConnState) {
	s.state.Store(int32(state))
}

func (s *Server) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickname
}

// DumpInfo logs the address, nickname, and currently-joined channels.
func (s *Server) DumpInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var joined []string
	for name, ch := range s.channels {
		if ch.state == Joined {
			joined = append(joined, name)
		}
	}
	s.logger.Infof("server %s:%s nick=%q channels=%v", s.address, s.port, s.nickname, joined)
}

// JoinChannel sends JOIN and upserts the channel entry as JoinRequested.
func (s *Server) JoinChannel(name string) {
	s.mu.Lock()
	if ch, ok := s.channels[name]; ok {
		ch.state = JoinRequested
	} else {
		s.channels[name] = newChannel(name)
	}
	s.mu.Unlock()
	if _, err := s.irc.Join(name); err != nil {
		s.logger.Warnf("JOIN %s: %v", name, err)
	}
}

// UpdateJoinChannel advances a JoinRequested entry to Joined on the wire
// echo. Any other state is a no-op (a late echo after a part).
func (s *Server) UpdateJoinChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok || ch.state != JoinRequested {
		return
	}
	ch.state = Joined
}

// PartChannel sends PART and marks the entry PartRequested. It's a
// StateViolation to part a channel that isn't in the map.
func (s *Server) PartChannel(name string) error {
	s.mu.Lock()
	ch, ok := s.channels[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchChannel, name)
	}
	ch.state = PartRequested
	s.mu.Unlock()
	if _, err := s.irc.Part(name); err != nil {
		s.logger.Warnf("PART %s: %v", name, err)
	}
	return nil
}

// UpdatePartChannel removes a PartRequested entry on the wire echo. Any
// other state is a no-op.
func (s *Server) UpdatePartChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok || ch.state != PartRequested {
		return
	}
	delete(s.channels, name)
}

// SendChannel sends a PRIVMSG to target without checking membership.
func (s *Server) SendChannel(target, msg string) {
	if _, err := s.irc.PrivMsg(target, msg); err != nil {
		s.logger.Warnf("PRIVMSG %s: %v", target, err)
	}
}

// UpdateNickname applies a confirmed rename: nickname becomes new iff it
// currently equals old. Otherwise it's logged and ignored.
func (s *Server) UpdateNickname(old, new string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nickname != old {
		s.logger.Warnf("NICK echo for %q but current nickname is %q, ignoring", old, s.nickname)
		return
	}
	s.nickname = new
}

// SetNickname issues a NICK request; the rename itself happens on the
// echo via UpdateNickname, not here.
func (s *Server) SetNickname(new string) {
	if _, err := s.irc.Nick(new); err != nil {
		s.logger.Warnf("NICK %s: %v", new, err)
	}
}

// AddChannelMember records nick as occupying channel, if the channel is
// known. Populated from JOIN notifications for users other than the bot
// itself.
func (s *Server) AddChannelMember(channel, nick string) {
	s.mu.Lock()
	ch, ok := s.channels[channel]
	s.mu.Unlock()
	if !ok {
		return
	}
	ch.names.Add(nick)
}

// RemoveChannelMember drops nick from channel's member set. Called for
// PART notifications of users other than the bot itself; QUIT does not
// update member sets.
func (s *Server) RemoveChannelMember(channel, nick string) {
	s.mu.Lock()
	ch, ok := s.channels[channel]
	s.mu.Unlock()
	if !ok {
		return
	}
	ch.names.Remove(nick)
}

// RenameChannelMember updates every channel's member set that currently
// lists old, replacing it with new. A NICK change isn't scoped to one
// channel, so every channel the bot tracks is checked.
func (s *Server) RenameChannelMember(old, new string) {
	s.mu.Lock()
	channels := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()
	for _, ch := range channels {
		if ch.names.Has(old) {
			ch.names.Replace(old, new)
		}
	}
}

// PopulateChannelNames merges one RPL_NAMREPLY page of nicknames into
// channel's member set.
func (s *Server) PopulateChannelNames(channel string, names []string) {
	s.mu.Lock()
	ch, ok := s.channels[channel]
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, n := range names {
		ch.names.Add(n)
	}
}

// AddPluginCommands registers one command a plugin wants to expose under
// word (the full ":"+prefix+name key), recording it under pluginName so
// RemovePluginCommands can remove exactly what was added.
func (s *Server) AddPluginCommands(pluginName, word string, minArgs, maxArgs int, capability Capability, fn CommandFunc) {
	s.commandsMu.Lock()
	defer s.commandsMu.Unlock()
	s.userCommands[word] = builtin{minArgs: minArgs, maxArgs: maxArgs, capability: capability, fn: fn}
	s.pluginKeys[pluginName] = append(s.pluginKeys[pluginName], word)
}

// RemovePluginCommands removes every command entry previously added by
// pluginName.
func (s *Server) RemovePluginCommands(pluginName string) {
	s.commandsMu.Lock()
	defer s.commandsMu.Unlock()
	for _, word := range s.pluginKeys[pluginName] {
		delete(s.userCommands, word)
	}
	delete(s.pluginKeys, pluginName)
}
