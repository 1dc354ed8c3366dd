package state

import (
	"math"
	"sort"

	"github.com/starford/onyx/internal/models"
)

// TasksOfType returns the tasks of type t, excluding calendar-only entries.
func TasksOfType(s *models.AppState, t models.TaskType) []models.Task {
	var out []models.Task
	for _, task := range s.Tasks {
		if task.Type == t && !task.HasTag(models.TagCalendarOnly) {
			out = append(out, task)
		}
	}
	return out
}

// CalendarTasks returns tasks due on date, including calendar-only ones.
func CalendarTasks(s *models.AppState, date string) []models.Task {
	var out []models.Task
	for _, task := range s.Tasks {
		if task.DueDate == date {
			out = append(out, task)
		}
	}
	return out
}

// EventsOn returns the calendar events on date, sorted by time.
func EventsOn(s *models.AppState, date string) []models.CalendarEvent {
	var out []models.CalendarEvent
	for _, ev := range s.Events {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// ReachableMilestones returns milestones whose objective still exists.
// Orphans left behind by a cascade are kept in state but never shown.
func ReachableMilestones(s *models.AppState) []models.Milestone {
	live := make(map[string]struct{}, len(s.Objectives))
	for _, ob := range s.Objectives {
		live[ob.ID] = struct{}{}
	}
	var out []models.Milestone
	for _, m := range s.Milestones {
		if _, ok := live[m.ObjectiveID]; ok {
			out = append(out, m)
		}
	}
	return out
}

// AreaProgress summarises completion inside one life area.
type AreaProgress struct {
	AreaID          string `json:"areaId"`
	Tasks           int    `json:"tasks"`
	TasksDone       int    `json:"tasksDone"`
	Objectives      int    `json:"objectives"`
	Milestones      int    `json:"milestones"`
	MilestonesDone  int    `json:"milestonesDone"`
	PercentComplete int    `json:"percentComplete"`
}

// Progress computes the progress of areaID over its tasks and the
// milestones reachable through its objectives.
func Progress(s *models.AppState, areaID string) AreaProgress {
	p := AreaProgress{AreaID: areaID}
	for _, t := range s.Tasks {
		if t.AreaID != areaID {
			continue
		}
		p.Tasks++
		if t.Completed {
			p.TasksDone++
		}
	}
	objectives := make(map[string]struct{})
	for _, ob := range s.Objectives {
		if ob.AreaID == areaID {
			objectives[ob.ID] = struct{}{}
		}
	}
	p.Objectives = len(objectives)
	for _, m := range s.Milestones {
		if _, ok := objectives[m.ObjectiveID]; !ok {
			continue
		}
		p.Milestones++
		if m.Completed {
			p.MilestonesDone++
		}
	}
	total := p.Tasks + p.Milestones
	if total > 0 {
		p.PercentComplete = int(math.Round(float64(p.TasksDone+p.MilestonesDone) * 100 / float64(total)))
	}
	return p
}

// RecentNotes returns up to limit notes, newest first. limit <= 0 means all.
func RecentNotes(s *models.AppState, limit int) []models.Note {
	out := append([]models.Note(nil), s.Notes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Overview is a compact summary of the whole state.
type Overview struct {
	Date            string         `json:"date"`
	DailyTotal      int            `json:"dailyTotal"`
	DailyDone       int            `json:"dailyDone"`
	OpenShortTerm   int            `json:"openShortTerm"`
	OpenLongTerm    int            `json:"openLongTerm"`
	RemindersToday  int            `json:"remindersToday"`
	Notes           int            `json:"notes"`
	Areas           []AreaProgress `json:"areas"`
}

// Summarize builds an Overview of s as seen on today.
func Summarize(s *models.AppState, today string) Overview {
	o := Overview{Date: today, Notes: len(s.Notes), Areas: []AreaProgress{}}
	for _, t := range s.Tasks {
		switch t.Type {
		case models.TaskDaily:
			o.DailyTotal++
			if t.Completed {
				o.DailyDone++
			}
		case models.TaskShortTerm:
			if !t.Completed {
				o.OpenShortTerm++
			}
		case models.TaskLongTerm:
			if !t.Completed {
				o.OpenLongTerm++
			}
		case models.TaskReminder:
			if !t.Completed && t.DueDate == today {
				o.RemindersToday++
			}
		}
	}
	for _, a := range s.Areas {
		o.Areas = append(o.Areas, Progress(s, a.ID))
	}
	return o
}
