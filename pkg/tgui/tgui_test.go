package tgui

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTagsEscape(t *testing.T) {
	t.Parallel()

	if got := B("a<b"); got != "<b>a&lt;b</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := Code("x&y"); got != "<code>x&amp;y</code>" {
		t.Fatalf("Code = %q", got)
	}
	if got := I("n"); got != "<i>n</i>" {
		t.Fatalf("I = %q", got)
	}
	if got := JoinH(" ", Esc("1"), "", Raw("<i>2</i>")); got != "1 <i>2</i>" {
		t.Fatalf("JoinH = %q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"项目会议", 4, "项目会议"},
		{"项目会议", 2, "项目…"},
		{"abc", 0, ""},
		{"abcdef", 3, "abc…"},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestTruncLines(t *testing.T) {
	t.Parallel()

	more := func(n int) string { return fmt.Sprintf("+%d", n) }
	lines := []string{"<b>head</b>", "1. <code>一二三</code>", "2. <code>四五六</code>", "3. <code>七八九</code>"}
	s := strings.Join(lines, "\n")
	size := utf8.RuneCountInString(s)

	tests := []struct {
		name string
		max  int
		want string
	}{
		{"fits", size, s},
		{"drop one", size - 1, strings.Join(lines[:3], "\n") + "\n+1"},
		{"drop all but head", utf8.RuneCountInString(lines[0]) + 3, lines[0] + "\n+3"},
		{"head alone too long", 5, "<b>h…"},
	}
	for _, tt := range tests {
		if got := TruncLines(s, tt.max, more); got != tt.want {
			t.Fatalf("%s: TruncLines = %q, want %q", tt.name, got, tt.want)
		}
		if got := TruncLines(s, tt.max, more); utf8.RuneCountInString(got) > tt.max {
			t.Fatalf("%s: %d runes, want <= %d", tt.name, utf8.RuneCountInString(got), tt.max)
		}
	}
}
