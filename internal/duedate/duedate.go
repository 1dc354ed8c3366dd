// Package duedate reads due dates written in plain English ("tomorrow at
// 5pm", "next friday", "in 3 days") as well as ISO dates.
package duedate

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/state"
)

// Due is a parsed due date. Time is "" when the text named no clock time.
type Due struct {
	Date string // YYYY-MM-DD
	Time string // HH:mm
}

// Parser resolves relative expressions against a clock in one location.
type Parser struct {
	w   *when.Parser
	loc *time.Location
}

// New returns a parser for loc; nil means UTC.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w, loc: loc}
}

// Parse resolves text relative to now.
func (p *Parser) Parse(text string, now time.Time) (Due, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Due{}, fmt.Errorf("empty due date: %w", apperr.ErrInvalid)
	}
	if d, err := time.ParseInLocation(state.DateLayout, text, p.loc); err == nil {
		return Due{Date: d.Format(state.DateLayout)}, nil
	}
	if d, err := time.ParseInLocation(state.DateLayout+" "+state.ClockLayout, text, p.loc); err == nil {
		return Due{Date: d.Format(state.DateLayout), Time: d.Format(state.ClockLayout)}, nil
	}

	base := now.In(p.loc).Truncate(time.Minute)
	r, err := p.w.Parse(text, base)
	if err != nil {
		return Due{}, fmt.Errorf("parse due date %q: %w", text, err)
	}
	if r == nil {
		return Due{}, fmt.Errorf("no date in %q: %w", text, apperr.ErrInvalid)
	}
	at := r.Time.In(p.loc)
	due := Due{Date: at.Format(state.DateLayout)}
	// Rules that name no clock time keep the base clock.
	if at.Hour() != base.Hour() || at.Minute() != base.Minute() {
		due.Time = at.Format(state.ClockLayout)
	}
	return due, nil
}
