package api

import (
	"github.com/starford/onyx/internal/assistant"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/state"
	"github.com/starford/onyx/internal/syncer"
)

// StateResponse is the full state with the session status.
type StateResponse struct {
	State  *models.AppState `json:"state" validate:"required"`
	Status syncer.Status    `json:"status" validate:"required"`
	Today  string           `json:"today" example:"2024-05-02" validate:"required"`
}

// CreateTaskRequest is a task draft. Due, when set, is parsed as a natural
// language due date and overrides dueDate and dueTime.
type CreateTaskRequest struct {
	models.Task
	Due string `json:"due,omitempty" example:"tomorrow at 5pm"`
}

// TaskListResponse wraps a task listing.
type TaskListResponse struct {
	Tasks []models.Task `json:"tasks" validate:"required"`
}

// DayResponse is everything scheduled on one date.
type DayResponse struct {
	Date   string                 `json:"date" example:"2024-05-02" validate:"required"`
	Tasks  []models.Task          `json:"tasks" validate:"required"`
	Events []models.CalendarEvent `json:"events" validate:"required"`
}

// NoteListResponse wraps a note listing, most recent first.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
}

// MilestoneListResponse wraps milestones whose objective still exists.
type MilestoneListResponse struct {
	Milestones []models.Milestone `json:"milestones" validate:"required"`
}

// ProgressResponse is the progress of one area.
type ProgressResponse = state.AreaProgress

// CredentialsRequest is the body of sign-in and sign-up.
type CredentialsRequest struct {
	Email    string `json:"email" example:"me@example.com" validate:"required"`
	Password string `json:"password" example:"secret1" validate:"required"`
}

// SessionResponse describes the signed-in user; empty when signed out.
type SessionResponse struct {
	UserID string `json:"uid,omitempty"`
	Email  string `json:"email,omitempty"`
}

// ChatRequest is a message to the assistant with the conversation so far.
type ChatRequest struct {
	History []assistant.Turn `json:"history"`
	Message string           `json:"message" validate:"required"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Reply string `json:"reply" validate:"required"`
}

// CreatedResponse carries the id of a created entity.
type CreatedResponse struct {
	ID string `json:"id" validate:"required"`
}
