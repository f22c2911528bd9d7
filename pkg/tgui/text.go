package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes is Telegram's length limit for one text message.
const MaxMessageRunes = 4096

// TruncRunes keeps the first n runes of s and appends "…" when anything was
// cut. n <= 0 yields "".
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}

// TruncLines drops whole trailing lines of s until it fits in max runes
// together with more(dropped). Lines are never split, so HTML tags that
// open and close on one line stay balanced.
func TruncLines(s string, max int, more func(dropped int) string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	lines := strings.Split(s, "\n")
	size := utf8.RuneCountInString(s)
	for keep := len(lines) - 1; keep > 0; keep-- {
		size -= utf8.RuneCountInString(lines[keep]) + 1
		tail := "\n" + more(len(lines)-keep)
		if size+utf8.RuneCountInString(tail) <= max {
			return strings.Join(lines[:keep], "\n") + tail
		}
	}
	return TruncRunes(lines[0], max-1)
}
