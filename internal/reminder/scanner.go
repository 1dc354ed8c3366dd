// Package reminder raises alerts for reminders and calendar events whose due
// minute has arrived. It reads state but never changes it.
package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/notify"
	"github.com/starford/onyx/internal/state"
)

// TitleReminder is the alert title of a due reminder task.
const TitleReminder = "Reminder Due"

// TitleEvent is the alert title of a calendar event starting now.
const TitleEvent = "Event Starting"

// Source supplies the current state.
type Source interface {
	Snapshot(ctx context.Context) (*models.AppState, error)
}

// Scanner checks the state on a fixed interval.
type Scanner struct {
	src      Source
	notifier notify.Notifier
	now      func() time.Time
	loc      *time.Location
	interval time.Duration
	logger   *slog.Logger

	minute string              // minute the fired set belongs to
	fired  map[string]struct{} // "id|YYYY-MM-DDTHH:MM"
}

// Options configures a Scanner.
type Options struct {
	Interval time.Duration // default 5s
	Now      func() time.Time
	Location *time.Location // default UTC
	Logger   *slog.Logger
}

// New creates a scanner reading src and alerting through n.
func New(src Source, n notify.Notifier, opts Options) *Scanner {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scanner{
		src:      src,
		notifier: n,
		now:      opts.Now,
		loc:      opts.Location,
		interval: opts.Interval,
		logger:   opts.Logger,
		fired:    make(map[string]struct{}),
	}
}

// Run scans until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Scan(ctx)
		}
	}
}

// Scan runs one pass and returns how many alerts it raised. Each item fires
// at most once per minute however often Scan runs.
func (s *Scanner) Scan(ctx context.Context) int {
	now := s.now().In(s.loc)
	today := state.Today(now)
	clock := now.Format(state.ClockLayout)
	minute := today + "T" + clock

	if minute != s.minute {
		s.minute = minute
		clear(s.fired)
	}

	snap, err := s.src.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("reminder: snapshot failed", slog.String("error", err.Error()))
		return 0
	}

	n := 0
	for _, t := range snap.Tasks {
		if t.Type != models.TaskReminder || t.Completed || t.DueDate != today || t.DueTime != clock {
			continue
		}
		if s.fire(ctx, t.ID, TitleReminder, t.Title) {
			n++
		}
	}
	for _, ev := range snap.Events {
		if ev.Time == "" || ev.Date != today || ev.Time != clock {
			continue
		}
		if s.fire(ctx, ev.ID, TitleEvent, ev.Title) {
			n++
		}
	}
	return n
}

func (s *Scanner) fire(ctx context.Context, id, title, body string) bool {
	key := id + "|" + s.minute
	if _, ok := s.fired[key]; ok {
		return false
	}
	s.fired[key] = struct{}{}
	if err := s.notifier.Notify(ctx, title, body); err != nil {
		s.logger.Warn("reminder: notify failed", slog.String("id", id), slog.String("error", err.Error()))
	}
	return true
}
