package state

import (
	"fmt"
	"time"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/models"
)

// Defaults applied to drafts with missing fields.
const (
	DefaultTaskTitle = "New Task"
	DefaultNoteTitle = "Untitled"
	DefaultAreaName  = "New Area"
	DefaultAreaIcon  = "Layers"
	DefaultAreaColor = "#ffffff"
)

// Ops applies entity operations. Every method takes the current state and
// returns a new one; the input is never mutated. Operations on an unknown id
// return apperr.ErrNotFound together with the unchanged input.
type Ops struct {
	now func() time.Time
	ids *IDGenerator
}

// NewOps creates Ops stamping ids and timestamps from now.
func NewOps(now func() time.Time) *Ops {
	if now == nil {
		now = time.Now
	}
	return &Ops{now: now, ids: NewIDGenerator(now)}
}

// TaskPatch carries the fields of an update; nil means unchanged.
// Type is deliberately absent: a task keeps its type for life.
type TaskPatch struct {
	Title     *string           `json:"title,omitempty"`
	Completed *bool             `json:"completed,omitempty"`
	Priority  *models.Priority  `json:"priority,omitempty"`
	Tags      *[]string         `json:"tags,omitempty"`
	DueDate   *string           `json:"dueDate,omitempty"`
	DueTime   *string           `json:"dueTime,omitempty"`
	AreaID    *string           `json:"areaId,omitempty"`
	Subtasks  *[]models.SubTask `json:"subtasks,omitempty"`
}

// AreaPatch updates a life area.
type AreaPatch struct {
	Name        *string `json:"name,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ObjectivePatch updates an objective.
type ObjectivePatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// MilestonePatch updates a milestone.
type MilestonePatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// NotePatch updates a note.
type NotePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// EventPatch updates a calendar event.
type EventPatch struct {
	Title *string `json:"title,omitempty"`
	Date  *string `json:"date,omitempty"`
	Time  *string `json:"time,omitempty"`
}

// --- Tasks ---

// AddTask appends a task built from draft. The id, completion flag and
// creation time are always assigned here.
func (o *Ops) AddTask(s *models.AppState, draft models.Task) (*models.AppState, models.Task, error) {
	if draft.Type == "" {
		draft.Type = models.TaskShortTerm
	}
	if !draft.Type.Valid() {
		return s, models.Task{}, fmt.Errorf("task type %q: %w", draft.Type, apperr.ErrInvalid)
	}
	if draft.Title == "" {
		draft.Title = DefaultTaskTitle
	}
	if draft.Tags == nil {
		draft.Tags = []string{}
	} else {
		draft.Tags = cloneItems(draft.Tags)
	}
	if draft.Subtasks != nil {
		draft.Subtasks = cloneItems(draft.Subtasks)
	}
	for i := range draft.Subtasks {
		if draft.Subtasks[i].ID == "" {
			draft.Subtasks[i].ID = o.ids.Next("st-")
		}
	}
	draft.ID = o.ids.Next("")
	draft.Completed = false
	draft.CreatedAt = o.now().UnixMilli()

	next := *s
	next.Tasks = append(cloneItems(s.Tasks), draft)
	return &next, draft, nil
}

// UpdateTask shallow-merges p into the task with id.
func (o *Ops) UpdateTask(s *models.AppState, id string, p TaskPatch) (*models.AppState, error) {
	tasks, ok := replaceByID(s.Tasks, id, taskIDOf, func(t models.Task) models.Task {
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Completed != nil {
			t.Completed = *p.Completed
		}
		if p.Priority != nil {
			t.Priority = *p.Priority
		}
		if p.Tags != nil {
			t.Tags = append([]string{}, (*p.Tags)...)
		}
		if p.DueDate != nil {
			t.DueDate = *p.DueDate
		}
		if p.DueTime != nil {
			t.DueTime = *p.DueTime
		}
		if p.AreaID != nil {
			t.AreaID = *p.AreaID
		}
		if p.Subtasks != nil {
			t.Subtasks = append([]models.SubTask{}, (*p.Subtasks)...)
		}
		return t
	})
	if !ok {
		return s, notFound("task", id)
	}
	next := *s
	next.Tasks = tasks
	return &next, nil
}

// DeleteTask removes the task with id.
func (o *Ops) DeleteTask(s *models.AppState, id string) (*models.AppState, error) {
	tasks, ok := removeWhere(s.Tasks, func(t models.Task) bool { return t.ID == id })
	if !ok {
		return s, notFound("task", id)
	}
	next := *s
	next.Tasks = tasks
	return &next, nil
}

// ToggleTask flips the completion flag of the task with id.
func (o *Ops) ToggleTask(s *models.AppState, id string) (*models.AppState, error) {
	tasks, ok := replaceByID(s.Tasks, id, taskIDOf, func(t models.Task) models.Task {
		t.Completed = !t.Completed
		return t
	})
	if !ok {
		return s, notFound("task", id)
	}
	next := *s
	next.Tasks = tasks
	return &next, nil
}

// ToggleSubtask flips one subtask of a task.
func (o *Ops) ToggleSubtask(s *models.AppState, taskID, subtaskID string) (*models.AppState, error) {
	found := false
	tasks, ok := replaceByID(s.Tasks, taskID, taskIDOf, func(t models.Task) models.Task {
		t.Subtasks, found = replaceByID(t.Subtasks, subtaskID, subtaskIDOf, func(st models.SubTask) models.SubTask {
			st.Completed = !st.Completed
			return st
		})
		return t
	})
	if !ok || !found {
		return s, notFound("subtask", subtaskID)
	}
	next := *s
	next.Tasks = tasks
	return &next, nil
}

// --- Areas ---

// AddArea appends a life area, filling name, icon and color defaults.
func (o *Ops) AddArea(s *models.AppState, draft models.LifeArea) (*models.AppState, models.LifeArea, error) {
	if draft.Name == "" {
		draft.Name = DefaultAreaName
	}
	if draft.Icon == "" {
		draft.Icon = DefaultAreaIcon
	}
	if draft.Color == "" {
		draft.Color = DefaultAreaColor
	}
	draft.ID = o.ids.Next("area-")
	next := *s
	next.Areas = append(cloneItems(s.Areas), draft)
	return &next, draft, nil
}

// UpdateArea shallow-merges p into the area with id.
func (o *Ops) UpdateArea(s *models.AppState, id string, p AreaPatch) (*models.AppState, error) {
	areas, ok := replaceByID(s.Areas, id, func(a models.LifeArea) string { return a.ID }, func(a models.LifeArea) models.LifeArea {
		if p.Name != nil {
			a.Name = *p.Name
		}
		if p.Icon != nil {
			a.Icon = *p.Icon
		}
		if p.Color != nil {
			a.Color = *p.Color
		}
		if p.Description != nil {
			a.Description = *p.Description
		}
		return a
	})
	if !ok {
		return s, notFound("area", id)
	}
	next := *s
	next.Areas = areas
	return &next, nil
}

// DeleteArea removes the area, every task with that areaId and every
// objective with that areaId. Milestones of the removed objectives are left
// in place: they become unreachable from every view but are not deleted.
func (o *Ops) DeleteArea(s *models.AppState, id string) (*models.AppState, error) {
	areas, ok := removeWhere(s.Areas, func(a models.LifeArea) bool { return a.ID == id })
	if !ok {
		return s, notFound("area", id)
	}
	tasks, _ := removeWhere(s.Tasks, func(t models.Task) bool { return t.AreaID == id })
	objectives, _ := removeWhere(s.Objectives, func(ob models.Objective) bool { return ob.AreaID == id })
	next := *s
	next.Areas = areas
	next.Tasks = tasks
	next.Objectives = objectives
	return &next, nil
}

// --- Objectives ---

// AddObjective appends an objective. Title and areaId are required.
func (o *Ops) AddObjective(s *models.AppState, draft models.Objective) (*models.AppState, models.Objective, error) {
	if draft.Title == "" || draft.AreaID == "" {
		return s, models.Objective{}, fmt.Errorf("objective needs title and areaId: %w", apperr.ErrInvalid)
	}
	draft.ID = o.ids.Next("obj-")
	draft.Completed = false
	next := *s
	next.Objectives = append(cloneItems(s.Objectives), draft)
	return &next, draft, nil
}

// UpdateObjective shallow-merges p into the objective with id.
func (o *Ops) UpdateObjective(s *models.AppState, id string, p ObjectivePatch) (*models.AppState, error) {
	objectives, ok := replaceByID(s.Objectives, id, func(ob models.Objective) string { return ob.ID }, func(ob models.Objective) models.Objective {
		if p.Title != nil {
			ob.Title = *p.Title
		}
		if p.Completed != nil {
			ob.Completed = *p.Completed
		}
		return ob
	})
	if !ok {
		return s, notFound("objective", id)
	}
	next := *s
	next.Objectives = objectives
	return &next, nil
}

// DeleteObjective removes the objective. Its milestones stay, orphaned.
func (o *Ops) DeleteObjective(s *models.AppState, id string) (*models.AppState, error) {
	objectives, ok := removeWhere(s.Objectives, func(ob models.Objective) bool { return ob.ID == id })
	if !ok {
		return s, notFound("objective", id)
	}
	next := *s
	next.Objectives = objectives
	return &next, nil
}

// --- Milestones ---

// AddMilestone appends a milestone. Title and objectiveId are required.
func (o *Ops) AddMilestone(s *models.AppState, draft models.Milestone) (*models.AppState, models.Milestone, error) {
	if draft.Title == "" || draft.ObjectiveID == "" {
		return s, models.Milestone{}, fmt.Errorf("milestone needs title and objectiveId: %w", apperr.ErrInvalid)
	}
	draft.ID = o.ids.Next("m-")
	draft.Completed = false
	next := *s
	next.Milestones = append(cloneItems(s.Milestones), draft)
	return &next, draft, nil
}

// UpdateMilestone shallow-merges p into the milestone with id.
func (o *Ops) UpdateMilestone(s *models.AppState, id string, p MilestonePatch) (*models.AppState, error) {
	milestones, ok := replaceByID(s.Milestones, id, milestoneID, func(m models.Milestone) models.Milestone {
		if p.Title != nil {
			m.Title = *p.Title
		}
		if p.Completed != nil {
			m.Completed = *p.Completed
		}
		return m
	})
	if !ok {
		return s, notFound("milestone", id)
	}
	next := *s
	next.Milestones = milestones
	return &next, nil
}

// ToggleMilestone flips the completion flag of the milestone with id.
func (o *Ops) ToggleMilestone(s *models.AppState, id string) (*models.AppState, error) {
	milestones, ok := replaceByID(s.Milestones, id, milestoneID, func(m models.Milestone) models.Milestone {
		m.Completed = !m.Completed
		return m
	})
	if !ok {
		return s, notFound("milestone", id)
	}
	next := *s
	next.Milestones = milestones
	return &next, nil
}

// DeleteMilestone removes the milestone with id.
func (o *Ops) DeleteMilestone(s *models.AppState, id string) (*models.AppState, error) {
	milestones, ok := removeWhere(s.Milestones, func(m models.Milestone) bool { return m.ID == id })
	if !ok {
		return s, notFound("milestone", id)
	}
	next := *s
	next.Milestones = milestones
	return &next, nil
}

// --- Notes ---

// AddNote appends a note, defaulting the title to "Untitled".
func (o *Ops) AddNote(s *models.AppState, draft models.Note) (*models.AppState, models.Note, error) {
	if draft.Title == "" {
		draft.Title = DefaultNoteTitle
	}
	draft.ID = o.ids.Next("n-")
	draft.CreatedAt = o.now().UnixMilli()
	next := *s
	next.Notes = append(cloneItems(s.Notes), draft)
	return &next, draft, nil
}

// UpdateNote shallow-merges p into the note with id.
func (o *Ops) UpdateNote(s *models.AppState, id string, p NotePatch) (*models.AppState, error) {
	notes, ok := replaceByID(s.Notes, id, func(n models.Note) string { return n.ID }, func(n models.Note) models.Note {
		if p.Title != nil {
			n.Title = *p.Title
		}
		if p.Content != nil {
			n.Content = *p.Content
		}
		return n
	})
	if !ok {
		return s, notFound("note", id)
	}
	next := *s
	next.Notes = notes
	return &next, nil
}

// DeleteNote removes the note with id.
func (o *Ops) DeleteNote(s *models.AppState, id string) (*models.AppState, error) {
	notes, ok := removeWhere(s.Notes, func(n models.Note) bool { return n.ID == id })
	if !ok {
		return s, notFound("note", id)
	}
	next := *s
	next.Notes = notes
	return &next, nil
}

// --- Calendar events ---

// AddEvent appends a calendar event. Title and date are required.
func (o *Ops) AddEvent(s *models.AppState, draft models.CalendarEvent) (*models.AppState, models.CalendarEvent, error) {
	if draft.Title == "" || draft.Date == "" {
		return s, models.CalendarEvent{}, fmt.Errorf("event needs title and date: %w", apperr.ErrInvalid)
	}
	draft.ID = o.ids.Next("ev-")
	next := *s
	next.Events = append(cloneItems(s.Events), draft)
	return &next, draft, nil
}

// UpdateEvent shallow-merges p into the event with id.
func (o *Ops) UpdateEvent(s *models.AppState, id string, p EventPatch) (*models.AppState, error) {
	events, ok := replaceByID(s.Events, id, func(e models.CalendarEvent) string { return e.ID }, func(e models.CalendarEvent) models.CalendarEvent {
		if p.Title != nil {
			e.Title = *p.Title
		}
		if p.Date != nil {
			e.Date = *p.Date
		}
		if p.Time != nil {
			e.Time = *p.Time
		}
		return e
	})
	if !ok {
		return s, notFound("event", id)
	}
	next := *s
	next.Events = events
	return &next, nil
}

// DeleteEvent removes the event with id.
func (o *Ops) DeleteEvent(s *models.AppState, id string) (*models.AppState, error) {
	events, ok := removeWhere(s.Events, func(e models.CalendarEvent) bool { return e.ID == id })
	if !ok {
		return s, notFound("event", id)
	}
	next := *s
	next.Events = events
	return &next, nil
}

// --- helpers ---

func taskIDOf(t models.Task) string         { return t.ID }
func subtaskIDOf(st models.SubTask) string  { return st.ID }
func milestoneID(m models.Milestone) string { return m.ID }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, apperr.ErrNotFound)
}

func cloneItems[T any](items []T) []T {
	return append(make([]T, 0, len(items)+1), items...)
}

// replaceByID returns a copy of items with the element matching id replaced
// by fn(element). ok is false when no element matched.
func replaceByID[T any](items []T, id string, idOf func(T) string, fn func(T) T) ([]T, bool) {
	out := make([]T, len(items))
	found := false
	for i, it := range items {
		if idOf(it) == id {
			it = fn(it)
			found = true
		}
		out[i] = it
	}
	if items == nil {
		out = nil
	}
	return out, found
}

// removeWhere returns a copy of items without the matching elements.
func removeWhere[T any](items []T, match func(T) bool) ([]T, bool) {
	out := make([]T, 0, len(items))
	removed := false
	for _, it := range items {
		if match(it) {
			removed = true
			continue
		}
		out = append(out, it)
	}
	if items == nil {
		out = nil
	}
	return out, removed
}
