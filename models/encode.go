package models

import (
	"strconv"
	"strings"
)

// EncodeEntities reproduces the decimal HTML-entity form the song cache stores
// titles in: markup-significant ASCII, astral symbols and every BMP code point
// outside printable ASCII become "&#N;". Rows written by earlier versions of
// the bot are only reachable by substring match if this stays byte-identical.
func EncodeEntities(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if needsEntity(r) {
			b.WriteString("&#")
			b.WriteString(strconv.Itoa(int(r)))
			b.WriteByte(';')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func needsEntity(r rune) bool {
	switch r {
	case '"', '&', '\'', '<', '>', '`':
		return true
	case 0x0B, 0x0C, 0x7F, 0x81, 0x8D, 0x8F, 0x90, 0x9D:
		return true
	}
	switch {
	case r >= 0x01 && r <= 0x09:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r >= 0xA0:
		return true
	}
	return false
}
