package kbot

import (
	"fmt"
	"strings"
	"unicode"
)

const channelLengthLimit = 200

// isASCII reports whether s contains only ASCII code points.
func isASCII(s string) bool {
	for _, c := range s {
		if c > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// ValidateChannel checks a channel name against RFC 1459 §1.3's shape:
// non-empty, ASCII, under the length limit, free of illegal characters,
// and prefixed with '#' or '&'.
func ValidateChannel(channel string) error {
	if len(channel) == 0 {
		return fmt.Errorf("%w: empty channel name", ErrParse)
	}
	if len(channel) > channelLengthLimit {
		return fmt.Errorf("%w: channel name longer than %d bytes", ErrParse, channelLengthLimit)
	}
	if !isASCII(channel) {
		return fmt.Errorf("%w: non-ASCII channel name", ErrParse)
	}
	if strings.ContainsAny(channel, ", \x00\x07") {
		return fmt.Errorf("%w: illegal symbol in channel name", ErrParse)
	}
	if !strings.HasPrefix(channel, "#") && !strings.HasPrefix(channel, "&") {
		return fmt.Errorf("%w: channel name missing '#'/'&' prefix", ErrParse)
	}
	return nil
}

// ValidateNick checks a nickname against RFC 1459's shape.
func ValidateNick(nick string) error {
	if len(nick) == 0 {
		return fmt.Errorf("%w: empty nickname", ErrParse)
	}
	if len(nick) > 9 {
		return fmt.Errorf("%w: nickname longer than 9 bytes", ErrParse)
	}
	if !isASCII(nick) {
		return fmt.Errorf("%w: non-ASCII nickname", ErrParse)
	}
	if strings.ContainsAny(nick, ", \x00\x07") {
		return fmt.Errorf("%w: illegal symbol in nickname", ErrParse)
	}
	if strings.HasPrefix(nick, "#") || strings.HasPrefix(nick, "&") {
		return fmt.Errorf("%w: nickname starts with '#'/'&'", ErrParse)
	}
	return nil
}
