package kbot

import "golang.org/x/text/encoding/charmap"

// encode transcodes a UTF-8 string to the bytes of a legacy single-byte
// charset. Used only when an IRC has a non-nil charmap configured.
func encode(input string, cm *charmap.Charmap) []byte {
	result := make([]byte, 0, len(input))
	for _, r := range input {
		b, _ := cm.EncodeRune(r)
		result = append(result, b)
	}
	return result
}

// decode transcodes legacy single-byte charset bytes into a UTF-8 string.
func decode(input []byte, cm *charmap.Charmap) string {
	runes := make([]rune, 0, len(input))
	for _, v := range input {
		runes = append(runes, cm.DecodeByte(v))
	}
	return string(runes)
}
