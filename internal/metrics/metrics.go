// Package metrics holds the Prometheus collectors of the agent and the hub.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync counts orchestrator activity.
type Sync struct {
	Transitions     *prometheus.CounterVec
	Pushes          prometheus.Counter
	PushErrors      prometheus.Counter
	RemoteSnapshots prometheus.Counter
	StaleCallbacks  prometheus.Counter
	Degraded        prometheus.Gauge
}

// NewSync creates the sync collectors and registers them with reg when reg
// is non-nil.
func NewSync(reg prometheus.Registerer) *Sync {
	m := &Sync{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onyx_state_transitions_total",
			Help: "Committed state transitions by origin.",
		}, []string{"origin"}),
		Pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onyx_remote_pushes_total",
			Help: "Snapshots pushed to the remote replica.",
		}),
		PushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onyx_remote_push_errors_total",
			Help: "Failed pushes to the remote replica.",
		}),
		RemoteSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onyx_remote_snapshots_total",
			Help: "Snapshots received from the remote replica.",
		}),
		StaleCallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onyx_stale_callbacks_total",
			Help: "Remote callbacks dropped because their subscription had ended.",
		}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "onyx_sync_degraded",
			Help: "1 while the session runs local-only after a remote error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Pushes, m.PushErrors, m.RemoteSnapshots, m.StaleCallbacks, m.Degraded)
	}
	return m
}

// HTTP records request counts and latencies per route pattern.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTP creates the HTTP collectors and registers them with reg when reg
// is non-nil.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Middleware observes every request. Paths are labelled by chi route
// pattern to keep cardinality bounded.
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
