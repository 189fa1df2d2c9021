package handlers

import (
	"net/http"
	"time"

	"analysis-engine/internal/pipeline/core"
)

// HealthCheck reports whether the engine accepts jobs along with a count of
// running executions
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	running := 0
	for _, exec := range h.engine.List() {
		if exec.Status() == core.StatusRunning {
			running++
		}
	}

	status, code := "healthy", http.StatusOK
	if !h.engine.Started() {
		status, code = "stopped", http.StatusServiceUnavailable
	}

	h.sendJSONStatus(w, code, map[string]interface{}{
		"status":             status,
		"running_executions": running,
		"workers":            h.engine.Environment().Settings.Workers,
		"timestamp":          time.Now().UTC(),
	})
}
