package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Bidon15/licensesale/internal/pkg/response"
)

// Check probes a dependency.
type Check func(ctx context.Context) error

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	version string
	checks  map[string]Check
}

// NewHealthHandler creates a health handler. Readiness runs every check.
func NewHealthHandler(version string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

// Live reports that the process is up.
// GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok", "version": h.version})
}

// Ready reports whether every dependency answers.
// GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	response.JSON(w, status, results)
}
