package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

var cst = time.FixedZone("CST", 8*3600)

// 2025-01-14 is a Tuesday.
func refNow() time.Time { return time.Date(2025, 1, 14, 8, 0, 0, 0, cst) }

func zhNumeral(t *testing.T, n int) string {
	t.Helper()
	for k, v := range numeralTable {
		if v == n && k != "两" && k != "兩" {
			return k
		}
	}
	t.Fatalf("no Chinese numeral for %d", n)
	return ""
}

func TestParseOffsetTiers(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()
	units := []struct {
		name  string
		zh    string
		tier  Tier
		apply func(n int) time.Time
	}{
		{"day", "天后", TierDay, func(n int) time.Time { return now.AddDate(0, 0, n) }},
		{"hour", "小时后", TierHour, func(n int) time.Time { return now.Add(time.Duration(n) * time.Hour) }},
		{"minute", "分钟后", TierMinute, func(n int) time.Time { return now.Add(time.Duration(n) * time.Minute) }},
	}

	for _, u := range units {
		for n := 1; n <= 60; n++ {
			for _, num := range []string{fmt.Sprint(n), zhNumeral(t, n)} {
				in := num + u.zh + " 吃药"
				m, err := p.Explain(in, now)
				if err != nil {
					t.Fatalf("Explain(%q) err = %v", in, err)
				}
				if m.Tier != u.tier {
					t.Fatalf("Explain(%q) tier = %v, want %v", in, m.Tier, u.tier)
				}
				if d := m.FireAt.Sub(u.apply(n)); d > time.Second || d < -time.Second {
					t.Fatalf("Explain(%q) fireAt = %v, want %v", in, m.FireAt, u.apply(n))
				}
				if m.EventText != "吃药" {
					t.Fatalf("Explain(%q) event = %q, want %q", in, m.EventText, "吃药")
				}
				if m.Matched != num+u.zh {
					t.Fatalf("Explain(%q) matched = %q, want %q", in, m.Matched, num+u.zh)
				}
			}
		}
	}
}

func TestParseEnglishOffsets(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()
	tests := []struct {
		in    string
		tier  Tier
		at    time.Time
		event string
	}{
		{"in 3 hours call mom", TierHour, now.Add(3 * time.Hour), "call mom"},
		{"2 days later pay rent", TierDay, now.AddDate(0, 0, 2), "pay rent"},
		{"after 10 minutes stretch", TierMinute, now.Add(10 * time.Minute), "stretch"},
		{"stand up in 1 min", TierMinute, now.Add(time.Minute), "stand up"},
		{"In 2 Hrs laundry", TierHour, now.Add(2 * time.Hour), "laundry"},
		{"三个小时后 开会", TierHour, now.Add(3 * time.Hour), "开会"},
		{"两天后 交作业", TierDay, now.AddDate(0, 0, 2), "交作业"},
	}
	for _, tt := range tests {
		m, err := p.Explain(tt.in, now)
		if err != nil {
			t.Fatalf("Explain(%q) err = %v", tt.in, err)
		}
		if m.Tier != tt.tier || !m.FireAt.Equal(tt.at) || m.EventText != tt.event {
			t.Fatalf("Explain(%q) = (%v, %v, %q), want (%v, %v, %q)",
				tt.in, m.Tier, m.FireAt, m.EventText, tt.tier, tt.at, tt.event)
		}
	}
}

func TestParseTierPrecedence(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()

	// a day offset beats an hour offset later in the text
	m, ok := p.Parse("2天后 5小时后 复查", now)
	if !ok || m.Tier != TierDay || !m.FireAt.Equal(now.AddDate(0, 0, 2)) {
		t.Fatalf("Parse = (%+v, %v), want day tier", m, ok)
	}
	if m.EventText != "5小时后 复查" {
		t.Fatalf("event = %q, want %q", m.EventText, "5小时后 复查")
	}

	// an unresolvable quantity falls through to the next tier
	m, ok = p.Parse("0天后 10分钟后 喝水", now)
	if !ok || m.Tier != TierMinute || !m.FireAt.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("Parse = (%+v, %v), want minute tier", m, ok)
	}
}

func TestParseScenarios(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()
	tests := []struct {
		in    string
		tier  Tier
		at    time.Time
		event string
	}{
		{"明天10点 项目会议", TierSearch, time.Date(2025, 1, 15, 10, 0, 0, 0, cst), "项目会议"},
		{"五小时后 睡觉", TierHour, now.Add(5 * time.Hour), "睡觉"},
		{"5分钟后 休息", TierMinute, now.Add(5 * time.Minute), "休息"},
		{"2025-01-15 14:30 重要会议", TierSearch, time.Date(2025, 1, 15, 14, 30, 0, 0, cst), "重要会议"},
	}
	for _, tt := range tests {
		m, ok := p.Parse(tt.in, now)
		if !ok {
			t.Fatalf("Parse(%q) ok = false", tt.in)
		}
		if m.Tier != tt.tier || !m.FireAt.Equal(tt.at) || m.EventText != tt.event {
			t.Fatalf("Parse(%q) = (%v, %v, %q), want (%v, %v, %q)",
				tt.in, m.Tier, m.FireAt, m.EventText, tt.tier, tt.at, tt.event)
		}
	}
}

func TestParseEventExtraction(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()
	tests := []struct {
		in   string
		want string
	}{
		{"3天后", DefaultPlaceholder},
		{"明天10点", DefaultPlaceholder},
		{"  10分钟后 - ", DefaultPlaceholder},
		{"明天10点 - 项目会议", "项目会议"},
		{"项目会议 — 5分钟后", "项目会议"},
		{"5分钟后 – 休息 –", "休息"},
		{"喝水 5分钟后 再喝水 5分钟后", "喝水  再喝水 5分钟后"},
	}
	for _, tt := range tests {
		m, ok := p.Parse(tt.in, now)
		if !ok {
			t.Fatalf("Parse(%q) ok = false", tt.in)
		}
		if m.EventText != tt.want {
			t.Fatalf("Parse(%q) event = %q, want %q", tt.in, m.EventText, tt.want)
		}
	}
}

func TestParseCustomPlaceholder(t *testing.T) {
	t.Parallel()

	p := New(WithPlaceholder("reminder"))
	m, ok := p.Parse("in 5 minutes", refNow())
	if !ok || m.EventText != "reminder" {
		t.Fatalf("Parse = (%+v, %v), want placeholder %q", m, ok, "reminder")
	}
}

func TestParseEventLengthBound(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()

	exact := "ab" + strings.Repeat("很", 66) // 200 bytes
	if m, ok := p.Parse("5分钟后 "+exact, now); !ok || m.EventText != exact {
		t.Fatalf("200-byte event rejected: (%+v, %v)", m, ok)
	}

	long := strings.Repeat("很", 67) // 201 bytes
	if _, ok := p.Parse("5分钟后 "+long, now); ok {
		t.Fatalf("201-byte event accepted")
	}
	if _, err := p.Explain("明天10点 "+long, now); !errors.Is(err, ErrEventTooLong) {
		t.Fatalf("Explain err = %v, want ErrEventTooLong", err)
	}

	short := New(WithMaxEventBytes(4))
	if _, ok := short.Parse("5分钟后 hello", now); ok {
		t.Fatalf("event longer than configured bound accepted")
	}
}

func TestParseRejectsPastAndUnknown(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()
	tests := []struct {
		in  string
		err error
	}{
		{"2024-12-31 10:00 旧会议", ErrNotInFuture},
		{"2025-01-14 08:00 现在", ErrNotInFuture},
		{"这周一 开会", ErrNotInFuture},
		{"随便说点什么", ErrNoTimeExpression},
		{"0天后 吃药", ErrNoTimeExpression},
		{"2025-02-30 10:00 不存在", ErrNoTimeExpression},
		{"", ErrNoTimeExpression},
	}
	for _, tt := range tests {
		_, err := p.Explain(tt.in, now)
		if !errors.Is(err, tt.err) {
			t.Fatalf("Explain(%q) err = %v, want %v", tt.in, err, tt.err)
		}
		if _, ok := p.Parse(tt.in, now); ok {
			t.Fatalf("Parse(%q) ok = true", tt.in)
		}
	}
}

func TestParseRecoversGrammarPanic(t *testing.T) {
	t.Parallel()

	p := New()
	p.grammars = append([]grammar{{
		tier: TierDay,
		try:  func(string, time.Time) (attempt, bool) { panic("boom") },
	}}, p.grammars...)

	_, err := p.Explain("5分钟后 休息", refNow())
	if !errors.Is(err, ErrNoTimeExpression) {
		t.Fatalf("err = %v, want ErrNoTimeExpression", err)
	}
}

func TestParseCasualDeadline(t *testing.T) {
	t.Parallel()

	p := New()
	now := refNow()
	tests := []struct {
		in    string
		tier  Tier
		want  time.Time
		event string
	}{
		{"in an hour 喝水", TierCasual, now.Add(time.Hour), "喝水"},
		{"in 2 hours 喝水", TierHour, now.Add(2 * time.Hour), "喝水"},
		{"明天10点 in an hour 开会", TierSearch, time.Date(2025, 1, 15, 10, 0, 0, 0, cst), "in an hour 开会"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			m, err := p.Explain(tt.in, now)
			if err != nil {
				t.Fatalf("Explain(%q) err = %v", tt.in, err)
			}
			if m.Tier != tt.tier {
				t.Fatalf("tier = %v, want %v", m.Tier, tt.tier)
			}
			if !m.FireAt.Equal(tt.want) {
				t.Fatalf("fireAt = %v, want %v", m.FireAt, tt.want)
			}
			if m.EventText != tt.event {
				t.Fatalf("event = %q, want %q", m.EventText, tt.event)
			}
		})
	}
}

func TestTierString(t *testing.T) {
	t.Parallel()

	if TierSearch.String() != "search" || TierCasual.String() != "casual" || Tier(0).String() != "unknown" {
		t.Fatalf("unexpected tier names: %v %v %v", TierSearch, TierCasual, Tier(0))
	}
}
