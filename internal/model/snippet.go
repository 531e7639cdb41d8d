package model

import (
	"strings"
	"unicode/utf8"
)

// TruncateSnippet flattens s onto one line, trims surrounding space and cuts
// it to at most max bytes without splitting a UTF-8 sequence.
func TruncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
