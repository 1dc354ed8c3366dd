package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/onyx/internal/assistant"
	"github.com/starford/onyx/internal/auth"
	"github.com/starford/onyx/internal/duedate"
	"github.com/starford/onyx/internal/syncer"
)

// Deps are the collaborators of the API.
type Deps struct {
	Orchestrator *syncer.Orchestrator
	Auth         auth.Provider
	Assistant    assistant.Completer
	DueDates     *duedate.Parser
	Logger       *slog.Logger

	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Orchestrator, d.Auth, d.Assistant, d.DueDates, d.Logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	r.Get("/state", h.GetState)
	r.Get("/status", h.GetStatus)
	r.Get("/overview", h.GetOverview)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.CreateTask)
		r.Patch("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)
		r.Post("/{id}/toggle", h.ToggleTask)
		r.Post("/{id}/subtasks/{sid}/toggle", h.ToggleSubtask)
	})
	r.Get("/calendar/{date}", h.GetDay)

	r.Route("/areas", func(r chi.Router) {
		r.Post("/", h.CreateArea)
		r.Patch("/{id}", h.UpdateArea)
		r.Delete("/{id}", h.DeleteArea)
		r.Get("/{id}/progress", h.GetAreaProgress)
	})
	r.Route("/objectives", func(r chi.Router) {
		r.Post("/", h.CreateObjective)
		r.Patch("/{id}", h.UpdateObjective)
		r.Delete("/{id}", h.DeleteObjective)
	})
	r.Route("/milestones", func(r chi.Router) {
		r.Get("/", h.ListMilestones)
		r.Post("/", h.CreateMilestone)
		r.Patch("/{id}", h.UpdateMilestone)
		r.Delete("/{id}", h.DeleteMilestone)
		r.Post("/{id}/toggle", h.ToggleMilestone)
	})
	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Post("/import", h.ImportNote)
		r.Patch("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
	})
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Patch("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
		if d.Events != nil {
			r.Get("/stream", d.Events.ServeHTTP)
		}
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/signin", h.SignIn)
		r.Post("/signup", h.SignUp)
		r.Post("/signout", h.SignOut)
	})

	r.Post("/assistant/chat", h.Chat)

	return r
}
