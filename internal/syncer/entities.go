package syncer

import (
	"context"

	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/state"
)

// apply runs a state operation on the loop and commits its result as a
// local transition. A failed operation commits nothing.
func (o *Orchestrator) apply(ctx context.Context, fn func(*models.AppState) (*models.AppState, error)) error {
	var opErr error
	err := o.do(ctx, func() {
		next, err := fn(o.cur)
		if err != nil {
			opErr = err
			return
		}
		o.commit(next, OriginLocal)
	})
	if err != nil {
		return err
	}
	return opErr
}

// AddTask creates a task from draft and returns it as stored.
func (o *Orchestrator) AddTask(ctx context.Context, draft models.Task) (models.Task, error) {
	var out models.Task
	err := o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		next, t, err := o.ops.AddTask(s, draft)
		out = t
		return next, err
	})
	return out, err
}

// UpdateTask merges p into a task.
func (o *Orchestrator) UpdateTask(ctx context.Context, id string, p state.TaskPatch) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.UpdateTask(s, id, p)
	})
}

// DeleteTask removes a task.
func (o *Orchestrator) DeleteTask(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.DeleteTask(s, id)
	})
}

// ToggleTask flips a task's completion.
func (o *Orchestrator) ToggleTask(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.ToggleTask(s, id)
	})
}

// ToggleSubtask flips a subtask's completion.
func (o *Orchestrator) ToggleSubtask(ctx context.Context, taskID, subtaskID string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.ToggleSubtask(s, taskID, subtaskID)
	})
}

// AddArea creates a life area.
func (o *Orchestrator) AddArea(ctx context.Context, draft models.LifeArea) (models.LifeArea, error) {
	var out models.LifeArea
	err := o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		next, a, err := o.ops.AddArea(s, draft)
		out = a
		return next, err
	})
	return out, err
}

// UpdateArea merges p into an area.
func (o *Orchestrator) UpdateArea(ctx context.Context, id string, p state.AreaPatch) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.UpdateArea(s, id, p)
	})
}

// DeleteArea removes an area with its tasks and objectives.
func (o *Orchestrator) DeleteArea(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.DeleteArea(s, id)
	})
}

// AddObjective creates an objective.
func (o *Orchestrator) AddObjective(ctx context.Context, draft models.Objective) (models.Objective, error) {
	var out models.Objective
	err := o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		next, ob, err := o.ops.AddObjective(s, draft)
		out = ob
		return next, err
	})
	return out, err
}

// UpdateObjective merges p into an objective.
func (o *Orchestrator) UpdateObjective(ctx context.Context, id string, p state.ObjectivePatch) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.UpdateObjective(s, id, p)
	})
}

// DeleteObjective removes an objective.
func (o *Orchestrator) DeleteObjective(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.DeleteObjective(s, id)
	})
}

// AddMilestone creates a milestone.
func (o *Orchestrator) AddMilestone(ctx context.Context, draft models.Milestone) (models.Milestone, error) {
	var out models.Milestone
	err := o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		next, m, err := o.ops.AddMilestone(s, draft)
		out = m
		return next, err
	})
	return out, err
}

// UpdateMilestone merges p into a milestone.
func (o *Orchestrator) UpdateMilestone(ctx context.Context, id string, p state.MilestonePatch) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.UpdateMilestone(s, id, p)
	})
}

// ToggleMilestone flips a milestone's completion.
func (o *Orchestrator) ToggleMilestone(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.ToggleMilestone(s, id)
	})
}

// DeleteMilestone removes a milestone.
func (o *Orchestrator) DeleteMilestone(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.DeleteMilestone(s, id)
	})
}

// AddNote creates a note.
func (o *Orchestrator) AddNote(ctx context.Context, draft models.Note) (models.Note, error) {
	var out models.Note
	err := o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		next, n, err := o.ops.AddNote(s, draft)
		out = n
		return next, err
	})
	return out, err
}

// UpdateNote merges p into a note.
func (o *Orchestrator) UpdateNote(ctx context.Context, id string, p state.NotePatch) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.UpdateNote(s, id, p)
	})
}

// DeleteNote removes a note.
func (o *Orchestrator) DeleteNote(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.DeleteNote(s, id)
	})
}

// AddEvent creates a calendar event.
func (o *Orchestrator) AddEvent(ctx context.Context, draft models.CalendarEvent) (models.CalendarEvent, error) {
	var out models.CalendarEvent
	err := o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		next, ev, err := o.ops.AddEvent(s, draft)
		out = ev
		return next, err
	})
	return out, err
}

// UpdateEvent merges p into a calendar event.
func (o *Orchestrator) UpdateEvent(ctx context.Context, id string, p state.EventPatch) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.UpdateEvent(s, id, p)
	})
}

// DeleteEvent removes a calendar event.
func (o *Orchestrator) DeleteEvent(ctx context.Context, id string) error {
	return o.apply(ctx, func(s *models.AppState) (*models.AppState, error) {
		return o.ops.DeleteEvent(s, id)
	})
}
