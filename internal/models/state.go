// Package models defines the domain types for Onyx.
package models

// TaskType decides which surface owns a task.
type TaskType string

// Task types.
const (
	TaskDaily     TaskType = "daily"
	TaskShortTerm TaskType = "short_term"
	TaskLongTerm  TaskType = "long_term"
	TaskLifeArea  TaskType = "life_area"
	TaskReminder  TaskType = "reminder"
)

// TaskTypes lists every valid task type.
var TaskTypes = []TaskType{TaskDaily, TaskShortTerm, TaskLongTerm, TaskLifeArea, TaskReminder}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	for _, v := range TaskTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Priority is an optional task priority.
type Priority string

// Priorities.
const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// TagCalendarOnly marks tasks created from the calendar view.
const TagCalendarOnly = "calendar_only"

// SubTask is a checklist item inside a task.
type SubTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task is a unit of work, habit or reminder.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	Type      TaskType  `json:"type"`
	Priority  Priority  `json:"priority,omitempty"`
	Tags      []string  `json:"tags"`
	DueDate   string    `json:"dueDate,omitempty"` // YYYY-MM-DD
	DueTime   string    `json:"dueTime,omitempty"` // HH:mm
	AreaID    string    `json:"areaId,omitempty"`
	CreatedAt int64     `json:"createdAt"` // unix millis
	Subtasks  []SubTask `json:"subtasks,omitempty"`
}

// HasTag reports whether the task carries tag.
func (t Task) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// LifeArea groups tasks and objectives.
type LifeArea struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Objective is a goal inside a life area.
type Objective struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	AreaID    string `json:"areaId"`
	Completed bool   `json:"completed"`
}

// Milestone is a checkpoint of an objective.
type Milestone struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Completed   bool   `json:"completed"`
	ObjectiveID string `json:"objectiveId"`
}

// Note is a free-text note.
type Note struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// CalendarEvent is a dated entry on the calendar.
type CalendarEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`           // YYYY-MM-DD
	Time  string `json:"time,omitempty"` // HH:mm
}

// AppState is the root aggregate: the unit of persistence and sync.
type AppState struct {
	Tasks         []Task          `json:"tasks"`
	Areas         []LifeArea      `json:"areas"`
	Objectives    []Objective     `json:"objectives"`
	Milestones    []Milestone     `json:"milestones"`
	Notes         []Note          `json:"notes"`
	LastLoginDate string          `json:"lastLoginDate"`
	Events        []CalendarEvent `json:"events,omitempty"`
}

// NewAppState returns an empty state stamped with today.
func NewAppState(today string) *AppState {
	return &AppState{
		Tasks:         []Task{},
		Areas:         []LifeArea{},
		Objectives:    []Objective{},
		Milestones:    []Milestone{},
		Notes:         []Note{},
		LastLoginDate: today,
	}
}

// Normalize replaces missing required collections with empty ones.
// Blobs written by older clients may omit objectives or notes.
func (s *AppState) Normalize() {
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	if s.Areas == nil {
		s.Areas = []LifeArea{}
	}
	if s.Objectives == nil {
		s.Objectives = []Objective{}
	}
	if s.Milestones == nil {
		s.Milestones = []Milestone{}
	}
	if s.Notes == nil {
		s.Notes = []Note{}
	}
}

// Clone returns a deep copy of s. Nil slices stay nil.
func (s *AppState) Clone() *AppState {
	if s == nil {
		return nil
	}
	out := &AppState{
		Tasks:         cloneSlice(s.Tasks),
		Areas:         cloneSlice(s.Areas),
		Objectives:    cloneSlice(s.Objectives),
		Milestones:    cloneSlice(s.Milestones),
		Notes:         cloneSlice(s.Notes),
		LastLoginDate: s.LastLoginDate,
		Events:        cloneSlice(s.Events),
	}
	for i := range out.Tasks {
		out.Tasks[i].Tags = cloneSlice(out.Tasks[i].Tags)
		out.Tasks[i].Subtasks = cloneSlice(out.Tasks[i].Subtasks)
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
