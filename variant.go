package kbot

import "strings"

// MessageType is the tag of the classified message variant.
type MessageType int

const (
	TypeDefault MessageType = iota
	TypePing
	TypeLogin
	TypeNick
	TypeJoin
	TypePart
	TypePrivMsg
	TypeQuit
	TypeNamesReply
	TypeEndOfNames
)

// ClassifyCommand maps a wire command to its variant tag by exact match.
// Anything not in the table is TypeDefault; the dispatcher ignores it.
func ClassifyCommand(command string) MessageType {
	switch command {
	case "PING":
		return TypePing
	case "LOGIN":
		return TypeLogin
	case "NICK":
		return TypeNick
	case "JOIN":
		return TypeJoin
	case "PART":
		return TypePart
	case "PRIVMSG":
		return TypePrivMsg
	case "QUIT", "KILL":
		return TypeQuit
	case "353":
		return TypeNamesReply
	case "366":
		return TypeEndOfNames
	default:
		return TypeDefault
	}
}

// Variant is a classified Message, ready for the Manager's visitor.
type Variant interface {
	Type() MessageType
}

type DefaultMessage struct{ Message }
type LoginMessage struct{ Message }
type QuitMessage struct{ Message }

func (DefaultMessage) Type() MessageType { return TypeDefault }
func (LoginMessage) Type() MessageType   { return TypeLogin }
func (QuitMessage) Type() MessageType    { return TypeQuit }

// PingMessage carries the server's PING token, echoed back verbatim in PONG.
type PingMessage struct{ Message }

func (PingMessage) Type() MessageType { return TypePing }

// Token returns the parameter the server expects echoed back in PONG,
// without the leading ':' its wire form carries.
func (p PingMessage) Token() string {
	if len(p.Params) == 0 {
		return ""
	}
	return strings.TrimPrefix(p.Params[0], ":")
}

// NickMessage is a NICK change, either the bot's own or another user's.
type NickMessage struct{ Message }

func (NickMessage) Type() MessageType { return TypeNick }

// OldUser is the identity that owned the nickname before the change.
func (n NickMessage) OldUser() (Identity, error) {
	return ParseIdentity(n.Source)
}

// NewNickname is the nickname being adopted, as it appears on the wire,
// including any leading ':'.
func (n NickMessage) NewNickname() string {
	if len(n.Params) == 0 {
		return ""
	}
	return n.Params[0]
}

// JoinMessage is a channel-join echo or notification.
type JoinMessage struct{ Message }

func (JoinMessage) Type() MessageType { return TypeJoin }

func (j JoinMessage) Channel() string {
	if len(j.Params) == 0 {
		return ""
	}
	return j.Params[0]
}

// User is the identity that joined.
func (j JoinMessage) User() (Identity, error) {
	return ParseIdentity(j.Source)
}

// PartMessage is a channel-part echo or notification.
type PartMessage struct{ Message }

func (PartMessage) Type() MessageType { return TypePart }

func (p PartMessage) Channel() string {
	if len(p.Params) == 0 {
		return ""
	}
	return p.Params[0]
}

// User is the identity that parted.
func (p PartMessage) User() (Identity, error) {
	return ParseIdentity(p.Source)
}

// NamesReplyMessage is one line of a RPL_NAMREPLY (353) response: a
// channel and a page of the nicknames currently occupying it. A /NAMES
// listing can span several of these before the terminating
// EndOfNamesMessage.
type NamesReplyMessage struct{ Message }

func (NamesReplyMessage) Type() MessageType { return TypeNamesReply }

// Channel is the channel this page of names belongs to: parameters are
// "<target-nick> <chantype> <channel> :name1 name2 ...".
func (n NamesReplyMessage) Channel() string {
	if len(n.Params) < 3 {
		return ""
	}
	return n.Params[2]
}

// Names returns the nicknames on this page, with any leading "@"/"+"
// prefix symbol (ops/voice) and the first entry's leading ':' stripped.
func (n NamesReplyMessage) Names() []string {
	if len(n.Params) < 4 {
		return nil
	}
	raw := append([]string(nil), n.Params[3:]...)
	raw[0] = strings.TrimPrefix(raw[0], ":")
	names := make([]string, 0, len(raw))
	for _, nick := range raw {
		names = append(names, strings.TrimLeft(nick, "@+"))
	}
	return names
}

// EndOfNamesMessage is the RPL_ENDOFNAMES (366) terminator closing a
// /NAMES listing. It carries no state of its own; classifying it
// explicitly (rather than letting it fall through to TypeDefault) keeps
// the NAMES exchange's classification surface complete.
type EndOfNamesMessage struct{ Message }

func (EndOfNamesMessage) Type() MessageType { return TypeEndOfNames }

// PrivMsgMessage is a chat message, possibly a user-command invocation.
type PrivMsgMessage struct{ Message }

func (PrivMsgMessage) Type() MessageType { return TypePrivMsg }

func (p PrivMsgMessage) Channel() string {
	if len(p.Params) == 0 {
		return ""
	}
	return p.Params[0]
}

// UserCommand is the bot's control word, including its ':' and prefix, or
// "" if the message carries no second parameter.
func (p PrivMsgMessage) UserCommand() string {
	if len(p.Params) < 2 {
		return ""
	}
	return p.Params[1]
}

func (p PrivMsgMessage) UserCommandParameters() []string {
	if len(p.Params) < 3 {
		return nil
	}
	return p.Params[2:]
}

func (p PrivMsgMessage) User() (Identity, error) {
	return ParseIdentity(p.Source)
}

// quitControlWord is the exact literal a PRIVMSG's second parameter must
// equal to be treated as a user-issued quit, colon and prefix included.
// This is a wire-format leak from the reference parser's tokenizer, kept
// verbatim per spec.
const quitControlWord = ":,quit"

// Classify turns a parsed Message into its typed Variant. isQuitCapable is
// consulted only for a PRIVMSG whose control word is the literal quit
// command; it should report whether the message's sender holds the Quit
// capability. Passing a predicate that always returns false is fine for
// callers that only care about generic classification (parser-level
// tests, round-trip checks).
func Classify(m Message, isQuitCapable func(Identity) bool) (Variant, error) {
	switch ClassifyCommand(m.Command) {
	case TypePing:
		return PingMessage{m}, nil
	case TypeLogin:
		return LoginMessage{m}, nil
	case TypeNick:
		return NickMessage{m}, nil
	case TypeJoin:
		return JoinMessage{m}, nil
	case TypePart:
		return PartMessage{m}, nil
	case TypeQuit:
		return QuitMessage{m}, nil
	case TypeNamesReply:
		return NamesReplyMessage{m}, nil
	case TypeEndOfNames:
		return EndOfNamesMessage{m}, nil
	case TypePrivMsg:
		pm := PrivMsgMessage{m}
		if pm.UserCommand() == quitControlWord {
			user, err := pm.User()
			if err == nil && isQuitCapable != nil && isQuitCapable(user) {
				return QuitMessage{m}, nil
			}
		}
		return pm, nil
	default:
		return DefaultMessage{m}, nil
	}
}
