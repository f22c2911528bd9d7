package timeparse

import (
	"strconv"
	"strings"
	"time"
)

// clock is the time-of-day part of a fallback phrase. set is false when the
// phrase carried no clock at all; period may still supply a default.
type clock struct {
	set          bool
	hour, minute int
	second       int
	period       string
}

var periodDefaults = map[string]int{
	"凌晨": 0,
	"清晨": 6,
	"早上": 9, "早晨": 9, "上午": 9,
	"中午": 12,
	"下午": 15,
	"傍晚": 18,
	"晚上": 20, "夜里": 20, "夜裡": 20,
}

func resolveClock(p phrase) (clock, bool) {
	c := clock{period: p["per"]}

	switch {
	case p.has("h"):
		c.hour, _ = strconv.Atoi(p["h"])
		c.minute, _ = strconv.Atoi(p["m"])
		if p.has("s") {
			c.second, _ = strconv.Atoi(p["s"])
		}
		c.set = true
		if !c.applyMeridiem(p["ap"]) {
			return clock{}, false
		}

	case p.has("zh"):
		h, ok := clockNumber(p["zh"])
		if !ok {
			return clock{}, false
		}
		c.hour = h
		switch {
		case p.has("half"):
			c.minute = 30
		case p.has("zm") || p.has("zmb"):
			m, ok := clockNumber(p["zm"] + p["zmb"])
			if !ok {
				return clock{}, false
			}
			c.minute = m
		}
		c.set = true

	case p.has("aph"):
		c.hour, _ = strconv.Atoi(p["aph"])
		c.set = true
		if !c.applyMeridiem(p["ap2"]) {
			return clock{}, false
		}

	case p.has("word"):
		if strings.EqualFold(p["word"], "noon") {
			c.hour = 12
		}
		c.set = true
	}

	c.applyPeriod()
	if c.second > 59 || c.minute > 59 || c.hour > 24 || (c.hour == 24 && (c.minute > 0 || c.second > 0)) {
		return clock{}, false
	}
	return c, true
}

// applyMeridiem folds an am/pm suffix into a 1..12 hour.
func (c *clock) applyMeridiem(ap string) bool {
	if ap == "" {
		return true
	}
	if c.hour < 1 || c.hour > 12 {
		return false
	}
	pm := strings.EqualFold(ap, "pm")
	switch {
	case pm && c.hour < 12:
		c.hour += 12
	case !pm && c.hour == 12:
		c.hour = 0
	}
	return true
}

func (c *clock) applyPeriod() {
	if !c.set {
		return
	}
	switch c.period {
	case "下午", "傍晚":
		if c.hour < 12 {
			c.hour += 12
		}
	case "晚上", "夜里", "夜裡":
		if c.hour < 12 {
			c.hour += 12
		} else if c.hour == 12 {
			c.hour = 24
		}
	case "中午":
		if c.hour < 6 {
			c.hour += 12
		}
	case "凌晨":
		if c.hour == 12 {
			c.hour = 0
		}
	}
}

// on places the clock on a calendar day. With no clock the period default
// applies, then fallback. Day overflow normalizes through time.Date.
func (c clock) on(y int, mo time.Month, d, fallback int, loc *time.Location) time.Time {
	switch {
	case c.set:
		return time.Date(y, mo, d, c.hour, c.minute, c.second, 0, loc)
	case c.period != "":
		return time.Date(y, mo, d, periodDefaults[c.period], 0, 0, 0, loc)
	default:
		return time.Date(y, mo, d, fallback, 0, 0, 0, loc)
	}
}
