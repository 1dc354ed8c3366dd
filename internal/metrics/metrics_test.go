package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSync_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSync(reg)
	m.Transitions.WithLabelValues("local").Inc()
	m.Pushes.Inc()

	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("local")); got != 1 {
		t.Errorf("transitions = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("gathered %d metrics, err=%v", n, err)
	}
}

func TestSync_NilRegistry(t *testing.T) {
	m := NewSync(nil)
	m.Degraded.Set(1)
	if testutil.ToFloat64(m.Degraded) != 1 {
		t.Error("unregistered gauge should still work")
	}
}

func TestHTTP_MiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler(reg))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/42", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/tasks/{id}", "418")); got != 1 {
		t.Errorf("request counter = %v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Error("metrics endpoint missing counter")
	}
}
