package timeparse

import (
	"regexp"
	"strings"
)

var (
	leadingSep  = regexp.MustCompile(`^[\s\x{3000}]*[-–—][\s\x{3000}]*`)
	trailingSep = regexp.MustCompile(`[\s\x{3000}]*[-–—][\s\x{3000}]*$`)
)

// extractEvent removes the first occurrence of matched from text, then one
// leading and one trailing dash separator. An empty result becomes the
// placeholder; an over-long one is rejected.
func (p *Parser) extractEvent(text, matched string) (string, error) {
	event := strings.Replace(text, matched, "", 1)
	event = strings.TrimSpace(event)
	event = leadingSep.ReplaceAllString(event, "")
	event = trailingSep.ReplaceAllString(event, "")
	event = strings.TrimSpace(event)

	if event == "" {
		return p.placeholder, nil
	}
	if len(event) > p.maxEventBytes {
		return "", ErrEventTooLong
	}
	return event, nil
}
