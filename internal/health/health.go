// Package health serves the liveness and readiness checks.
//
//   - /healthz always answers 200 while the process can serve HTTP.
//   - /readyz runs every registered [Checker] concurrently. It answers 503
//     when a required check fails. Optional checks cover collaborators the
//     reading tool can degrade without (the language model, speech); their
//     failure turns the status into "degraded" but keeps 200.
//
// Bodies are JSON objects with a "status" field ("ok", "degraded" or "fail")
// and a "checks" map from checker name to "ok" or "fail: <reason>".
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness check.
type Checker struct {
	// Name is the key of the check in the response.
	Name string

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error

	// Optional marks a dependency whose failure only degrades the service.
	Optional bool
}

// Report is the JSON body of both checks.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler is safe for concurrent use. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New returns a Handler evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz is the readiness check.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	status := http.StatusOK
	if rep.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Check runs all checkers, each bounded by a 5s timeout, and summarises them.
func (h *Handler) Check(ctx context.Context) Report {
	var (
		mu      sync.Mutex
		rep     = Report{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
		g       errgroup.Group
		failed  bool
		degrade bool
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				rep.Checks[c.Name] = StatusOK
				return nil
			}
			rep.Checks[c.Name] = "fail: " + err.Error()
			if c.Optional {
				degrade = true
			} else {
				failed = true
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case failed:
		rep.Status = StatusFail
	case degrade:
		rep.Status = StatusDegraded
	}
	return rep
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
