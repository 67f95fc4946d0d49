package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Overall statuses. A failing soft dependency degrades the service but
// keeps it serving.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

type Handler struct {
	checks map[string]Checker
	soft   map[string]bool
	logger *slog.Logger
}

// NewHandler checks every dependency in checks. Names listed in soft are
// ones the service can run without, such as the shared graph cache.
func NewHandler(logger *slog.Logger, checks map[string]Checker, soft ...string) *Handler {
	h := &Handler{checks: checks, soft: make(map[string]bool, len(soft)), logger: logger}
	for _, name := range soft {
		h.soft[name] = true
	}
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.check)
	return r
}

type Result struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	report := Report{Status: StatusOK, Checks: make(map[string]Result, len(h.checks))}
	var mu sync.Mutex

	var g errgroup.Group
	for name, c := range h.checks {
		g.Go(func() error {
			start := time.Now()
			err := c.Check(ctx)
			res := Result{Status: StatusOK, LatencyMS: time.Since(start).Milliseconds()}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				h.logger.Error("health check failed", "name", name, "error", err)
				res.Status = StatusError
				if h.soft[name] {
					if report.Status == StatusOK {
						report.Status = StatusDegraded
					}
				} else {
					report.Status = StatusError
				}
			}
			report.Checks[name] = res
			return nil
		})
	}
	g.Wait()

	status := http.StatusOK
	if report.Status == StatusError {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}
