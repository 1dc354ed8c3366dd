package hub

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/onyx/internal/metrics"
)

// NewRouter mounts the hub API. m and gatherer may be nil.
func NewRouter(h *Handler, m *metrics.HTTP, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/signin", h.SignIn)

		r.Route("/users/{uid}", func(r chi.Router) {
			r.Use(h.RequireUser)
			r.Get("/state", h.GetState)
			r.Put("/state", h.PutState)
			r.Get("/events", h.Events)
		})
	})
	return r
}
