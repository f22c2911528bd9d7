package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The fallback search recognizes "[date] [period] [clock]" phrases and a few
// standalone relative phrases. Resolution rules, all in now's location:
//
//   - an absolute date without a clock means 09:00 that day;
//   - a month-day without a year is this year, or next year once past;
//   - 今天/明天/后天 without a clock keep now's time of day;
//   - a period without a clock uses its default hour (上午 9, 中午 12,
//     下午 15, 傍晚 18, 晚上 20);
//   - 下周X is X in the next Monday-based week, 这周X/本周X is X in the
//     current week, a bare weekday (or "next X") is the nearest X whose
//     instant is still ahead;
//   - a bare clock is today if still ahead, otherwise tomorrow.
const defaultHour = 9

const (
	datePart = `(?:` +
		`(?P<y>\d{4})` + sp + `[-/.年]` + sp + `(?P<mo>\d{1,2})` + sp + `[-/.月]` + sp + `(?P<d>\d{1,2})(?:` + sp + `[日号號])?` +
		`|(?P<mdm>\d{1,2}|` + zhNum + `)` + sp + `月` + sp + `(?P<mdd>\d{1,2}|` + zhNum + `)` + sp + `[日号號]` +
		`|(?P<rel>大后天|大後天|后天|後天|今天|今日|明天|明日|今晚|明晚|\b(?:the day after tomorrow|day after tomorrow|tomorrow|today|tonight)\b)` +
		`|(?P<wdp>下下|下个|下個|下|这个|這個|这|這|本)?` + sp + `(?:周|週|星期|礼拜|禮拜)(?P<wdz>[一二三四五六日天])` +
		`|\b(?:(?P<wdpe>next|this)\s+)?(?P<wde>monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b` +
		`)`

	periodPart = `(?P<per>凌晨|清晨|早上|早晨|上午|中午|下午|傍晚|晚上|夜里|夜裡)`

	clockPart = `(?:` +
		`(?P<h>\d{1,2})` + sp + `[:：]` + sp + `(?P<m>\d{2})(?:[:：](?P<s>\d{2}))?(?:` + sp + `(?P<ap>am|pm)\b)?` +
		`|(?P<zh>\d{1,2}|` + zhClock + `)` + sp + `(?:点|點|时|時)(?:钟|鐘)?(?:(?P<half>半)|(?P<zm>\d{1,2}|` + zhClock + `)分|(?P<zmb>\d{2}|[一二三四五]?十[一二三四五六七八九]?|[零〇][一二三四五六七八九]))?` +
		`|\b(?P<aph>\d{1,2})` + sp + `(?P<ap2>am|pm)\b` +
		`|\b(?P<word>noon|midnight)\b` +
		`)`

	atPrefix = `(?:\bat\s+|@` + sp + `)?`

	standalonePart = `(?P<halfhour>半` + sp + `[个個]?` + sp + `小[时時][后後])` +
		`|(?P<rn>\d+|` + zhNum + `)` + sp + `[个個]?` + sp + `(?P<ru>周|週|星期|礼拜|禮拜|月)[后後]` +
		`|\bin` + sp + `(?P<en>\d+)` + sp + `(?P<eu>weeks?|months?)\b` +
		`|(?P<nw>下周|下週|下个星期|下個星期|下星期|next week)`
)

var phraseRe = regexp.MustCompile(`(?i)(?:` +
	datePart + `(?:` + sp + periodPart + `)?(?:` + sp + atPrefix + clockPart + `)?` +
	`|` + periodPart2() + sp + clockPart2() +
	`|` + atPrefix + clockPart3() +
	`|` + standalonePart +
	`)`)

// Go's regexp rejects duplicate group names, so the period and clock
// alternatives that appear without a date get their own suffixed copies.
func periodPart2() string { return suffixGroups(periodPart, "2") }
func clockPart2() string  { return suffixGroups(clockPart, "2") }
func clockPart3() string  { return suffixGroups(clockPart, "3") }

var groupNameRe = regexp.MustCompile(`\(\?P<([a-z0-9]+)>`)

func suffixGroups(pattern, suffix string) string {
	return groupNameRe.ReplaceAllString(pattern, `(?P<${1}_`+suffix+`>`)
}

// phrase holds the named captures of one match, with the suffixed copies
// folded back onto their base names.
type phrase map[string]string

func newPhrase(names []string, text string, loc []int) phrase {
	p := phrase{}
	for i, name := range names {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		if j := strings.IndexByte(name, '_'); j > 0 {
			name = name[:j]
		}
		p[name] = text[loc[2*i]:loc[2*i+1]]
	}
	return p
}

func (p phrase) has(name string) bool { return p[name] != "" }

// searchPhrase is the fallback grammar: the leftmost recognizable phrase
// decides. A recognizable phrase in the past rejects the input rather than
// letting a later phrase win.
func searchPhrase(text string, now time.Time) (attempt, bool) {
	names := phraseRe.SubexpNames()
	for _, loc := range phraseRe.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] == loc[1] {
			continue
		}
		at, ok := resolvePhrase(newPhrase(names, text, loc), now)
		if !ok {
			continue
		}
		a := attempt{fireAt: at, matched: text[loc[0]:loc[1]]}
		if !at.After(now) {
			a.err = ErrNotInFuture
		}
		return a, true
	}
	return attempt{}, false
}

func resolvePhrase(p phrase, now time.Time) (time.Time, bool) {
	if at, ok, isRel := resolveStandalone(p, now); isRel {
		return at, ok
	}

	c, ok := resolveClock(p)
	if !ok {
		return time.Time{}, false
	}
	loc := now.Location()
	y, mo, d := now.Date()

	switch {
	case p.has("y"):
		yy, _ := strconv.Atoi(p["y"])
		mm, _ := strconv.Atoi(p["mo"])
		dd, _ := strconv.Atoi(p["d"])
		if !validDate(yy, mm, dd) {
			return time.Time{}, false
		}
		return c.on(yy, time.Month(mm), dd, defaultHour, loc), true

	case p.has("mdm"):
		mm, ok1 := TranslateNumeral(p["mdm"])
		dd, ok2 := TranslateNumeral(p["mdd"])
		if !ok1 || !ok2 || !validDate(y, mm, dd) && !validDate(y+1, mm, dd) {
			return time.Time{}, false
		}
		at := c.on(y, time.Month(mm), dd, defaultHour, loc)
		if !at.After(now) || !validDate(y, mm, dd) {
			at = c.on(y+1, time.Month(mm), dd, defaultHour, loc)
		}
		return at, true

	case p.has("rel"):
		days, impliedPeriod := relativeDay(p["rel"])
		if c.period == "" && impliedPeriod != "" {
			c.period = impliedPeriod
			c.applyPeriod()
		}
		if !c.set && c.period == "" {
			return now.AddDate(0, 0, days), true
		}
		return c.on(y, mo, d+days, defaultHour, loc), true

	case p.has("wdz") || p.has("wde"):
		return resolveWeekday(p, c, now), true

	case c.set:
		at := c.on(y, mo, d, defaultHour, loc)
		if !at.After(now) {
			at = c.on(y, mo, d+1, defaultHour, loc)
		}
		return at, true
	}
	return time.Time{}, false
}

func resolveStandalone(p phrase, now time.Time) (at time.Time, ok bool, isRel bool) {
	switch {
	case p.has("halfhour"):
		return now.Add(30 * time.Minute), true, true
	case p.has("rn"):
		n, valid := TranslateNumeral(p["rn"])
		if !valid || n <= 0 || n > maxOffset/1000 {
			return time.Time{}, false, true
		}
		if p["ru"] == "月" {
			return now.AddDate(0, n, 0), true, true
		}
		return now.AddDate(0, 0, 7*n), true, true
	case p.has("en"):
		n, err := strconv.Atoi(p["en"])
		if err != nil || n <= 0 || n > maxOffset/1000 {
			return time.Time{}, false, true
		}
		if strings.HasPrefix(strings.ToLower(p["eu"]), "month") {
			return now.AddDate(0, n, 0), true, true
		}
		return now.AddDate(0, 0, 7*n), true, true
	case p.has("nw"):
		return now.AddDate(0, 0, 7), true, true
	}
	return time.Time{}, false, false
}

func relativeDay(word string) (days int, impliedPeriod string) {
	switch strings.ToLower(word) {
	case "今天", "今日", "today":
		return 0, ""
	case "今晚", "tonight":
		return 0, "晚上"
	case "明天", "明日", "tomorrow":
		return 1, ""
	case "明晚":
		return 1, "晚上"
	case "后天", "後天", "the day after tomorrow", "day after tomorrow":
		return 2, ""
	case "大后天", "大後天":
		return 3, ""
	}
	return 0, ""
}

var zhWeekdays = map[string]time.Weekday{
	"一": time.Monday, "二": time.Tuesday, "三": time.Wednesday, "四": time.Thursday,
	"五": time.Friday, "六": time.Saturday, "日": time.Sunday, "天": time.Sunday,
}

var enWeekdays = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
}

func resolveWeekday(p phrase, c clock, now time.Time) time.Time {
	var target time.Weekday
	prefix := ""
	if p.has("wdz") {
		target = zhWeekdays[p["wdz"]]
		prefix = p["wdp"]
	} else {
		target = enWeekdays[strings.ToLower(p["wde"])]
		prefix = strings.ToLower(p["wdpe"])
	}

	y, mo, d := now.Date()
	loc := now.Location()
	// Monday-based indices: Monday 0 .. Sunday 6
	cur := (int(now.Weekday()) + 6) % 7
	tgt := (int(target) + 6) % 7

	switch prefix {
	case "下", "下个", "下個":
		return c.on(y, mo, d+(7-cur)+tgt, defaultHour, loc)
	case "下下":
		return c.on(y, mo, d+(14-cur)+tgt, defaultHour, loc)
	case "这", "这个", "這", "這個", "本":
		return c.on(y, mo, d+(tgt-cur), defaultHour, loc)
	case "next":
		k := (tgt - cur + 7) % 7
		if k == 0 {
			k = 7
		}
		return c.on(y, mo, d+k, defaultHour, loc)
	}

	k := (tgt - cur + 7) % 7
	at := c.on(y, mo, d+k, defaultHour, loc)
	if !at.After(now) {
		at = c.on(y, mo, d+k+7, defaultHour, loc)
	}
	return at
}

func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d && int(t.Month()) == m
}
