// Package adminhttp exposes the daemon's internal operations surface:
// health/readiness, Prometheus metrics, and a read-only status view, plus one
// rate-limited manual-rescan trigger. It is ops tooling, not the domain REST
// surface the core's own Non-goals exclude (SPEC_FULL.md §A.5).
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// QueueStatus is the subset of queue.Queue this handler needs exposed.
type QueueStatus interface {
	Running() bool
}

// BatchStatus is the subset of batch.Orchestrator the /status route reports.
type BatchStatus interface {
	List() []BatchProgressView
}

// BatchProgressView mirrors batch.Progress's fields the admin surface reports,
// kept as its own type so this package never imports internal/batch.
type BatchProgressView struct {
	JobID     string
	Status    string
	Total     int
	Completed int
	Failed    int
	Skipped   int
}

// Rescanner triggers one immediate Watcher scan (spec §A.5's /status/rescan).
type Rescanner interface {
	ScanOnce(ctx context.Context)
}

// Config wires the dependencies the router needs; any may be nil. A nil Queue
// makes /readyz answer 503 and reports worker_pool_running as false, a nil
// Batch omits the batches field, a nil Rescanner makes /status/rescan answer
// 503, and a nil MetricsRegistry leaves /metrics unmounted.
type Config struct {
	Queue            QueueStatus
	Batch            BatchStatus
	Rescanner        Rescanner
	MetricsRegistry  *prometheus.Registry
	RescanRPS        int // requests per minute allowed on /status/rescan; default 6
	RescanBurst      int
	Log              zerolog.Logger
}

func (c Config) rescanRPS() int {
	if c.RescanRPS <= 0 {
		return 6
	}
	return c.RescanRPS
}

// NewRouter builds the admin chi.Mux. cfg.MetricsRegistry backs /metrics;
// pass the same *prometheus.Registry handed to metrics.NewRegistry.
// Callers that don't care to configure a logger can pass mblog.WithComponent("adminhttp").
func NewRouter(cfg Config) http.Handler {
	log := cfg.Log

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(recoverer(log))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(cfg.Queue))

	if cfg.MetricsRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Get("/status", handleStatus(cfg))

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.rescanRPS(), time.Minute))
		r.Post("/status/rescan", handleRescan(cfg.Rescanner, log))
	})

	return r
}

func recoverer(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					log.Error().
						Interface("panic", rec).
						Str("path", r.URL.Path).
						Str("stack", string(buf[:n])).
						Msg("panic recovered in admin handler")
					writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func handleReadyz(q QueueStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if q == nil || !q.Running() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

type statusResponse struct {
	WorkerPoolRunning bool                `json:"worker_pool_running"`
	Batches           []BatchProgressView `json:"batches,omitempty"`
}

func handleStatus(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{}
		if cfg.Queue != nil {
			resp.WorkerPoolRunning = cfg.Queue.Running()
		}
		if cfg.Batch != nil {
			resp.Batches = cfg.Batch.List()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRescan(rescanner Rescanner, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rescanner == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "watcher_unavailable"})
			return
		}
		log.Info().Msg("manual rescan triggered")
		rescanner.ScanOnce(r.Context())
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "scan_triggered"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
