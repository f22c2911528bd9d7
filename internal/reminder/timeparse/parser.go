// Package timeparse turns free-form Chinese or English text into a future
// fire time plus the remaining event text.
//
// Grammars are tried strictly in order and the first one that matches wins:
// "N days later", "N hours later", "N minutes later" (digits or Chinese
// numerals, English synonyms accepted), then a best-effort search for any
// date or clock phrase, then English deadlines and month names
// ("within half an hour", "march 5th") via github.com/olebedev/when. Parsing is pure and bounded: no I/O, no errors
// escape Parse, and a panic inside a grammar counts as no match.
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPlaceholder   = "提醒事项"
	DefaultMaxEventBytes = 200
)

var (
	ErrNoTimeExpression = errors.New("no time expression found")
	ErrEventTooLong     = errors.New("event text too long")
	ErrNotInFuture      = errors.New("time is not in the future")
)

// Tier identifies which grammar produced a match.
type Tier int

const (
	TierDay Tier = iota + 1
	TierHour
	TierMinute
	TierSearch
	TierCasual
)

func (t Tier) String() string {
	switch t {
	case TierDay:
		return "day"
	case TierHour:
		return "hour"
	case TierMinute:
		return "minute"
	case TierSearch:
		return "search"
	case TierCasual:
		return "casual"
	default:
		return "unknown"
	}
}

type Match struct {
	FireAt    time.Time
	EventText string
	// Matched is the time phrase exactly as it appeared in the input.
	Matched string
	Tier    Tier
}

// attempt is what a grammar reports: a resolved time and the substring it
// consumed. err is set when the grammar recognized a phrase but refuses the
// whole input (a past absolute time).
type attempt struct {
	fireAt  time.Time
	matched string
	err     error
}

type grammar struct {
	tier Tier
	try  func(text string, now time.Time) (attempt, bool)
}

type Parser struct {
	grammars      []grammar
	placeholder   string
	maxEventBytes int
}

type Option func(*Parser)

// WithPlaceholder sets the event text used when nothing is left after the
// time phrase is removed.
func WithPlaceholder(s string) Option {
	return func(p *Parser) {
		if s = strings.TrimSpace(s); s != "" {
			p.placeholder = s
		}
	}
}

// WithMaxEventBytes bounds the UTF-8 length of the extracted event text.
func WithMaxEventBytes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxEventBytes = n
		}
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{
		grammars: []grammar{
			{tier: TierDay, try: dayGrammar.try},
			{tier: TierHour, try: hourGrammar.try},
			{tier: TierMinute, try: minuteGrammar.try},
			{tier: TierSearch, try: searchPhrase},
			{tier: TierCasual, try: newCasual().try},
		},
		placeholder:   DefaultPlaceholder,
		maxEventBytes: DefaultMaxEventBytes,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse resolves text against now. ok is false when nothing usable was
// found; use Explain for the reason.
func (p *Parser) Parse(text string, now time.Time) (Match, bool) {
	m, err := p.Explain(text, now)
	return m, err == nil
}

// Explain is Parse with the rejection reason: ErrNoTimeExpression,
// ErrNotInFuture or ErrEventTooLong.
func (p *Parser) Explain(text string, now time.Time) (m Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = Match{}, fmt.Errorf("%w: parser panic: %v", ErrNoTimeExpression, r)
		}
	}()

	for _, g := range p.grammars {
		a, ok := g.try(text, now)
		if !ok {
			continue
		}
		if a.err != nil {
			return Match{}, a.err
		}
		if !a.fireAt.After(now) {
			return Match{}, ErrNotInFuture
		}
		event, err := p.extractEvent(text, a.matched)
		if err != nil {
			return Match{}, err
		}
		return Match{FireAt: a.fireAt, EventText: event, Matched: a.matched, Tier: g.tier}, nil
	}
	return Match{}, ErrNoTimeExpression
}
