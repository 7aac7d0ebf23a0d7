package logger

import "unicode/utf8"

// MaxValueLen bounds raw payload snippets written to the log.
const MaxValueLen = 200

// Truncate shortens s to at most MaxValueLen bytes without splitting a rune.
func Truncate(s string) string {
	if len(s) <= MaxValueLen {
		return s
	}
	cut := MaxValueLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
