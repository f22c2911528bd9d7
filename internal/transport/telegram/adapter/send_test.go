package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	kit "remindbot/internal/transport"
)

func TestSplitTextShortIsUntouched(t *testing.T) {
	t.Parallel()

	got := splitText("⏰ 提醒", 10, "")
	if len(got) != 1 || got[0] != "⏰ 提醒" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("一", 6) + "\n" + strings.Repeat("二", 6)
	got := splitText(s, 10, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	if got[0] != strings.Repeat("一", 6) || got[1] != strings.Repeat("二", 6) {
		t.Fatalf("chunks = %q", got)
	}
}

func TestSplitTextRespectsRuneLimit(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("会议", 50)
	for _, c := range splitText(s, 30, "") {
		if n := utf8.RuneCountInString(c); n > 30 {
			t.Fatalf("chunk has %d runes, want <= 30", n)
		}
	}
}

func TestSplitTextDoesNotCutHTMLTag(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 8) + "<b>bold</b>"
	got := splitText(s, 10, kit.ParseModeHTML)
	if got[0] != strings.Repeat("a", 8) {
		t.Fatalf("first chunk = %q, want the text before the tag", got[0])
	}
}

func TestMenuHashChangesWithCommands(t *testing.T) {
	t.Parallel()

	a := menuHash([]kit.BotCommand{{Command: "list", Description: "upcoming"}})
	b := menuHash([]kit.BotCommand{{Command: "list", Description: "upcoming"}})
	c := menuHash([]kit.BotCommand{{Command: "help", Description: "usage"}})
	if a != b || a == c {
		t.Fatalf("menuHash not stable/distinct: %x %x %x", a, b, c)
	}
}
