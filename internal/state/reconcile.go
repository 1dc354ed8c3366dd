// Package state holds the pure transformations of models.AppState: the daily
// reset reconciler, entity operations and derived views. Nothing here touches
// storage or the network; the syncer package sequences these functions.
package state

import (
	"time"

	"github.com/starford/onyx/internal/models"
)

// DateLayout is the calendar date format used throughout the state tree.
const DateLayout = "2006-01-02"

// ClockLayout is the HH:mm format of due times.
const ClockLayout = "15:04"

// Today formats now as a calendar date in now's location.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Reconcile applies the daily reset. When s.LastLoginDate differs from today
// it returns a new state in which every daily task is incomplete and
// LastLoginDate is today; otherwise s is returned as is. s is never mutated.
func Reconcile(s *models.AppState, today string) *models.AppState {
	if s == nil || s.LastLoginDate == today {
		return s
	}
	next := *s
	next.Tasks = make([]models.Task, len(s.Tasks))
	for i, t := range s.Tasks {
		if t.Type == models.TaskDaily {
			t.Completed = false
		}
		next.Tasks[i] = t
	}
	if s.Tasks == nil {
		next.Tasks = nil
	}
	next.LastLoginDate = today
	return &next
}
