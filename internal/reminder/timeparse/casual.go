package timeparse

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules"
	"github.com/olebedev/when/rules/en"
)

// casual is the last tier. It only carries rules the ordered grammars lack;
// clock and weekday phrases stay with searchPhrase so the prefer-future
// rules above decide them.
type casual struct {
	w *when.Parser
}

func newCasual() *casual {
	w := when.New(&rules.Options{
		Distance:     5,
		MatchByOrder: true,
		Morning:      defaultHour,
		Noon:         12,
		Afternoon:    15,
		Evening:      20,
	})
	w.Add(
		en.Deadline(rules.Override),
		en.ExactMonthDate(rules.Override),
	)
	return &casual{w: w}
}

func (c *casual) try(text string, now time.Time) (attempt, bool) {
	r, err := c.w.Parse(text, now)
	if err != nil || r == nil {
		return attempt{}, false
	}
	matched := strings.TrimSpace(r.Text)
	if matched == "" || !strings.Contains(text, matched) {
		return attempt{}, false
	}
	return attempt{fireAt: r.Time.In(now.Location()), matched: matched}, true
}
