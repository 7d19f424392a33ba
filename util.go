package kbot

import "strings"

// hasIllegalByte reports whether s carries a NUL or BEL byte, both
// disallowed on the wire.
func hasIllegalByte(s string) bool {
	return strings.ContainsAny(s, "\x00\x07")
}
