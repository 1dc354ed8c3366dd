package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/assistant"
	"github.com/starford/onyx/internal/auth"
	"github.com/starford/onyx/internal/duedate"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/parser"
	"github.com/starford/onyx/internal/state"
	"github.com/starford/onyx/internal/syncer"
)

// Handler holds API route handlers.
type Handler struct {
	orch   *syncer.Orchestrator
	auth   auth.Provider
	chat   assistant.Completer
	due    *duedate.Parser
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(orch *syncer.Orchestrator, provider auth.Provider, chat assistant.Completer, due *duedate.Parser, logger *slog.Logger) *Handler {
	return &Handler{orch: orch, auth: provider, chat: chat, due: due, logger: logger}
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*models.AppState, bool) {
	s, err := h.orch.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

// GetState handles GET /api/state.
//
//	@Summary		Current state and session status
//	@Tags			state
//	@Produce		json
//	@Success		200	{object}	StateResponse
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	st, err := h.orch.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{State: s, Status: st, Today: h.orch.Today()})
}

// GetStatus handles GET /api/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.orch.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetOverview handles GET /api/overview.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state.Summarize(s, h.orch.Today()))
}

// --- tasks ---

// ListTasks handles GET /api/tasks.
//
//	@Summary		List the tasks of one type
//	@Tags			tasks
//	@Produce		json
//	@Param			type	query		string	false	"Task type"	Enums(daily, short_term, long_term, life_area, reminder)
//	@Success		200		{object}	TaskListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	typ := models.TaskType(r.URL.Query().Get("type"))
	if typ == "" {
		writeJSON(w, http.StatusOK, TaskListResponse{Tasks: s.Tasks})
		return
	}
	if !typ.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown task type"))
		return
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: state.TasksOfType(s, typ)})
}

// CreateTask handles POST /api/tasks.
//
//	@Summary		Create a task
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTaskRequest	true	"Task draft"
//	@Success		201		{object}	models.Task
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks [post]
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	draft := req.Task
	if req.Due != "" {
		due, err := h.due.Parse(req.Due, h.orch.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		draft.DueDate, draft.DueTime = due.Date, due.Time
	}
	task, err := h.orch.AddTask(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask handles PATCH /api/tasks/{id}.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var p state.TaskPatch
	if !decode(w, r, &p) {
		return
	}
	h.done(w, h.orch.UpdateTask(r.Context(), chi.URLParam(r, "id"), p))
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.DeleteTask(r.Context(), chi.URLParam(r, "id")))
}

// ToggleTask handles POST /api/tasks/{id}/toggle.
func (h *Handler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.ToggleTask(r.Context(), chi.URLParam(r, "id")))
}

// ToggleSubtask handles POST /api/tasks/{id}/subtasks/{sid}/toggle.
func (h *Handler) ToggleSubtask(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.ToggleSubtask(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid")))
}

// GetDay handles GET /api/calendar/{date}.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !state.ValidDate(date) {
		writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
		return
	}
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DayResponse{
		Date:   date,
		Tasks:  state.CalendarTasks(s, date),
		Events: state.EventsOn(s, date),
	})
}

// --- areas, objectives, milestones ---

// CreateArea handles POST /api/areas.
func (h *Handler) CreateArea(w http.ResponseWriter, r *http.Request) {
	var draft models.LifeArea
	if !decode(w, r, &draft) {
		return
	}
	area, err := h.orch.AddArea(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, area)
}

// UpdateArea handles PATCH /api/areas/{id}.
func (h *Handler) UpdateArea(w http.ResponseWriter, r *http.Request) {
	var p state.AreaPatch
	if !decode(w, r, &p) {
		return
	}
	h.done(w, h.orch.UpdateArea(r.Context(), chi.URLParam(r, "id"), p))
}

// DeleteArea handles DELETE /api/areas/{id}. Tasks and objectives of the
// area go with it.
func (h *Handler) DeleteArea(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.DeleteArea(r.Context(), chi.URLParam(r, "id")))
}

// GetAreaProgress handles GET /api/areas/{id}/progress.
func (h *Handler) GetAreaProgress(w http.ResponseWriter, r *http.Request) {
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	for _, a := range s.Areas {
		if a.ID == id {
			writeJSON(w, http.StatusOK, state.Progress(s, id))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorBody("area not found"))
}

// CreateObjective handles POST /api/objectives.
func (h *Handler) CreateObjective(w http.ResponseWriter, r *http.Request) {
	var draft models.Objective
	if !decode(w, r, &draft) {
		return
	}
	obj, err := h.orch.AddObjective(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// UpdateObjective handles PATCH /api/objectives/{id}.
func (h *Handler) UpdateObjective(w http.ResponseWriter, r *http.Request) {
	var p state.ObjectivePatch
	if !decode(w, r, &p) {
		return
	}
	h.done(w, h.orch.UpdateObjective(r.Context(), chi.URLParam(r, "id"), p))
}

// DeleteObjective handles DELETE /api/objectives/{id}.
func (h *Handler) DeleteObjective(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.DeleteObjective(r.Context(), chi.URLParam(r, "id")))
}

// ListMilestones handles GET /api/milestones.
func (h *Handler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MilestoneListResponse{Milestones: state.ReachableMilestones(s)})
}

// CreateMilestone handles POST /api/milestones.
func (h *Handler) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	var draft models.Milestone
	if !decode(w, r, &draft) {
		return
	}
	m, err := h.orch.AddMilestone(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMilestone handles PATCH /api/milestones/{id}.
func (h *Handler) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	var p state.MilestonePatch
	if !decode(w, r, &p) {
		return
	}
	h.done(w, h.orch.UpdateMilestone(r.Context(), chi.URLParam(r, "id"), p))
}

// ToggleMilestone handles POST /api/milestones/{id}/toggle.
func (h *Handler) ToggleMilestone(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.ToggleMilestone(r.Context(), chi.URLParam(r, "id")))
}

// DeleteMilestone handles DELETE /api/milestones/{id}.
func (h *Handler) DeleteMilestone(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.DeleteMilestone(r.Context(), chi.URLParam(r, "id")))
}

// --- notes ---

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recent first
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of notes"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: state.RecentNotes(s, limit)})
}

// CreateNote handles POST /api/notes. A missing title is derived from the
// content.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var draft models.Note
	if !decode(w, r, &draft) {
		return
	}
	if draft.Title == "" {
		draft.Title = parser.Title(draft.Content)
	}
	h.createNote(w, r, draft)
}

// ImportNote handles POST /api/notes/import with a Markdown body.
//
//	@Summary		Create a note from a Markdown document
//	@Tags			notes
//	@Accept			text/markdown
//	@Produce		json
//	@Success		201	{object}	models.Note
//	@Security		BearerAuth
//	@Router			/notes/import [post]
func (h *Handler) ImportNote(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("read body"))
		return
	}
	h.createNote(w, r, parser.Parse(data).Note())
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request, draft models.Note) {
	n, err := h.orch.AddNote(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNote handles PATCH /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var p state.NotePatch
	if !decode(w, r, &p) {
		return
	}
	h.done(w, h.orch.UpdateNote(r.Context(), chi.URLParam(r, "id"), p))
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.DeleteNote(r.Context(), chi.URLParam(r, "id")))
}

// --- calendar events ---

// CreateEvent handles POST /api/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var draft models.CalendarEvent
	if !decode(w, r, &draft) {
		return
	}
	ev, err := h.orch.AddEvent(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// UpdateEvent handles PATCH /api/events/{id}.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var p state.EventPatch
	if !decode(w, r, &p) {
		return
	}
	h.done(w, h.orch.UpdateEvent(r.Context(), chi.URLParam(r, "id"), p))
}

// DeleteEvent handles DELETE /api/events/{id}.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.orch.DeleteEvent(r.Context(), chi.URLParam(r, "id")))
}

// --- auth ---

// GetSession handles GET /api/auth/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse(h.auth.Current()))
}

// SignIn handles POST /api/auth/signin.
//
//	@Summary		Sign in and start syncing
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CredentialsRequest	true	"Credentials"
//	@Success		200		{object}	SessionResponse
//	@Failure		401		{object}	errResponse
//	@Router			/auth/signin [post]
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(s))
}

// SignUp handles POST /api/auth/signup.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(s))
}

// SignOut handles POST /api/auth/signout.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.done(w, h.auth.SignOut(r.Context()))
}

func sessionResponse(s *auth.Session) SessionResponse {
	if s == nil {
		return SessionResponse{}
	}
	return SessionResponse{UserID: s.UserID, Email: s.Email}
}

// --- assistant ---

// Chat handles POST /api/assistant/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, apperr.ErrInvalid)
		return
	}
	s, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: h.chat.Complete(r.Context(), req.History, req.Message, s)})
}

// done replies 204 on success.
func (h *Handler) done(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
