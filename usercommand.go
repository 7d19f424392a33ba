package kbot

import "fmt"

// CommandFunc is the uniform shape of every user-command handler, whether
// a built-in or one registered by a plugin: the owning Server, the
// invoker's identity, the reply target, and the arguments after the
// command word.
type CommandFunc func(s *Server, invoker Identity, target string, args []string)

// builtin pairs a handler with its argument-count bounds and the
// capability required to invoke it. A zero capability means "anyone".
type builtin struct {
	minArgs, maxArgs int
	capability       Capability
	fn               CommandFunc
}

// builtinCommands is the process-wide, read-only-after-init command
// table. It's always checked before the Server's own userCommands map.
var builtinCommands map[string]builtin

func init() {
	builtinCommands = map[string]builtin{
		wireWord("hi"):     {0, 0, 0, cmdHi},
		wireWord("nick"):   {1, 1, CapNickModify, cmdNick},
		wireWord("join"):   {1, 1, CapJoin, cmdJoin},
		wireWord("part"):   {1, 1, CapPart, cmdPart},
		wireWord("load"):   {1, 1, CapAdmin, cmdLoad},
		wireWord("unload"): {1, 1, CapAdmin, cmdUnload},
		wireWord("help"):   {0, 1, 0, cmdHelp},
	}
}

// wireWord builds the full dispatch key for a bare command name, matching
// the literal colon-and-prefix token a PrivMsgMessage's UserCommand
// carries on the wire.
func wireWord(name string) string {
	return ":" + controlPrefix + name
}

func replyTo(m PrivMsgMessage, ownNick string) string {
	if m.Channel() == ownNick {
		user, err := m.User()
		if err == nil {
			return user.Nickname
		}
	}
	return m.Channel()
}

// Dispatch is the Manager's entry point for a classified PrivMsg variant.
// Lookup order: the built-in map, then the Server's guarded map, then
// silent drop.
func (s *Server) Dispatch(m PrivMsgMessage) {
	invoker, err := m.User()
	if err != nil {
		return
	}
	word := m.UserCommand()
	if word == "" {
		return
	}
	target := replyTo(m, s.Nickname())

	entry, ok := builtinCommands[word]
	if !ok {
		s.commandsMu.RLock()
		entry, ok = s.userCommands[word]
		s.commandsMu.RUnlock()
	}
	if !ok {
		return
	}

	if entry.capability != 0 && s.db.CapabilityMask(invoker)&entry.capability == 0 {
		s.SendChannel(target, fmt.Sprintf("%s: Error: Permission denied.", invoker.Nickname))
		return
	}

	args := m.UserCommandParameters()
	if len(args) < entry.minArgs || len(args) > entry.maxArgs {
		s.SendChannel(target, fmt.Sprintf("%s: Incorrect number of arguments, expected %d-%d.", invoker.Nickname, entry.minArgs, entry.maxArgs))
		return
	}

	entry.fn(s, invoker, target, args)
}

func cmdHi(s *Server, invoker Identity, target string, args []string) {
	s.SendChannel(target, fmt.Sprintf("%s: Hello!", invoker.Nickname))
}

func cmdNick(s *Server, invoker Identity, target string, args []string) {
	if err := ValidateNick(args[0]); err != nil {
		s.SendChannel(target, fmt.Sprintf("%s: invalid nickname: %v", invoker.Nickname, err))
		return
	}
	s.SetNickname(args[0])
}

func cmdJoin(s *Server, invoker Identity, target string, args []string) {
	if err := ValidateChannel(args[0]); err != nil {
		s.SendChannel(target, fmt.Sprintf("%s: invalid channel: %v", invoker.Nickname, err))
		return
	}
	s.JoinChannel(args[0])
}

func cmdPart(s *Server, invoker Identity, target string, args []string) {
	if err := s.PartChannel(args[0]); err != nil {
		s.SendChannel(target, fmt.Sprintf("%s: No such channel.", invoker.Nickname))
	}
}

func cmdLoad(s *Server, invoker Identity, target string, args []string) {
	name := args[0]
	s.mu.Lock()
	_, exists := s.plugins[name]
	s.mu.Unlock()
	if exists {
		s.SendChannel(target, fmt.Sprintf("%s: %q is already loaded.", invoker.Nickname, name))
		return
	}
	handle, err := LoadPlugin(name)
	if err != nil {
		s.logger.Errorf("load %s: %v", name, err)
		s.SendChannel(target, fmt.Sprintf("%s: Failed to load plugin.", invoker.Nickname))
		return
	}
	if err := handle.Register(s); err != nil {
		s.logger.Errorf("register %s: %v", name, err)
		s.SendChannel(target, fmt.Sprintf("%s: Failed to load plugin.", invoker.Nickname))
		return
	}
	s.mu.Lock()
	s.plugins[name] = handle
	s.mu.Unlock()
}

func cmdUnload(s *Server, invoker Identity, target string, args []string) {
	name := args[0]
	s.mu.Lock()
	handle, ok := s.plugins[name]
	if ok {
		delete(s.plugins, name)
	}
	s.mu.Unlock()
	if !ok {
		s.SendChannel(target, fmt.Sprintf("%s: No such plugin.", invoker.Nickname))
		return
	}
	handle.Delete(s)
	s.RemovePluginCommands(name)
}

func cmdHelp(s *Server, invoker Identity, target string, args []string) {
	if len(args) == 0 {
		s.SendChannel(target, fmt.Sprintf("%s: built-in commands: hi, nick, join, part, load, unload, help", invoker.Nickname))
		return
	}
	name := args[0]
	s.mu.Lock()
	handle, ok := s.plugins[name]
	s.mu.Unlock()
	if !ok {
		s.SendChannel(target, fmt.Sprintf("%s: No such plugin.", invoker.Nickname))
		return
	}
	handle.Help(s, invoker, target, nil)
}
