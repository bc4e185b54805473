// Package sanitize cleans untrusted strings that arrive over MCP before
// they are written to audit logs or echoed in errors.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// MaxParamLength is the maximum length of a sanitized tool parameter.
const MaxParamLength = 64

// ToolParam returns input with control characters removed, surrounding
// whitespace trimmed and the result truncated to MaxParamLength bytes on a
// rune boundary. Truncated values end in "...".
func ToolParam(input string) string {
	if input == "" {
		return ""
	}

	s := strings.TrimSpace(stripControlChars(input))
	if len(s) <= MaxParamLength {
		return s
	}

	cut := MaxParamLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// stripControlChars removes ASCII control characters (0x00-0x1F and 0x7F)
// and invalid UTF-8 from the string.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
