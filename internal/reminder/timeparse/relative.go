package timeparse

import (
	"regexp"
	"time"
)

const (
	sp      = `[\s\x{3000}]*`
	zhNum   = `[一二三四五六七八九十两兩]+`
	zhClock = `[零〇一二三四五六七八九十两兩]+`

	// maxOffset keeps N * unit far away from time.Duration overflow.
	maxOffset = 1_000_000
)

// offsetGrammar is one "N units later" family. Patterns are tried in
// order; the first whose quantity resolves to a positive number wins.
type offsetGrammar struct {
	patterns []*regexp.Regexp
	apply    func(now time.Time, n int) time.Time
}

func (g offsetGrammar) try(text string, now time.Time) (attempt, bool) {
	for _, re := range g.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, ok := TranslateNumeral(m[1])
		if !ok || n <= 0 || n > maxOffset {
			continue
		}
		return attempt{fireAt: g.apply(now, n), matched: m[0]}, true
	}
	return attempt{}, false
}

// offsetPatterns builds the pattern family for one unit: digits, Chinese
// numerals, then the English forms "N <unit> later", "in N <unit>",
// "after N <unit>".
func offsetPatterns(zhUnit, enUnit string) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(\d+)` + sp + zhUnit),
		regexp.MustCompile(`(` + zhNum + `)` + sp + zhUnit),
		regexp.MustCompile(`(?i)(\d+)` + sp + enUnit + sp + `later\b`),
		regexp.MustCompile(`(?i)\bin` + sp + `(\d+)` + sp + enUnit + `\b`),
		regexp.MustCompile(`(?i)\bafter` + sp + `(\d+)` + sp + enUnit + `\b`),
	}
}

var (
	dayGrammar = offsetGrammar{
		patterns: offsetPatterns(`天[后後]`, `days?`),
		apply:    func(now time.Time, n int) time.Time { return now.AddDate(0, 0, n) },
	}
	hourGrammar = offsetGrammar{
		patterns: offsetPatterns(`[个個]?`+sp+`小[时時][后後]`, `(?:hours?|hrs?)`),
		apply:    func(now time.Time, n int) time.Time { return now.Add(time.Duration(n) * time.Hour) },
	}
	minuteGrammar = offsetGrammar{
		patterns: offsetPatterns(`分[钟鐘][后後]`, `(?:minutes?|mins?)`),
		apply:    func(now time.Time, n int) time.Time { return now.Add(time.Duration(n) * time.Minute) },
	}
)
