package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	apperrors "analysis-engine/internal/common/errors"
	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline"
	"analysis-engine/internal/pipeline/core"
)

// maxWait bounds ?wait= on submissions
const maxWait = 5 * time.Minute

// SubmitJob parses a job definition from the body and starts it. The
// response is 202 with the execution summary, or 200 with the final
// summary when ?wait=<duration> is given and the execution finishes in
// time.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionSize))
	if err != nil {
		h.sendJSONError(w, err, "Failed to read job definition", "Failed to read request body", http.StatusBadRequest)
		return
	}

	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		h.sendJSONError(w, err, "Invalid wait parameter", "wait must be a duration such as 30s", http.StatusBadRequest)
		return
	}

	exec, err := h.engine.SubmitJSON(r.Context(), body)
	if err != nil {
		h.sendJSONError(w, err, "Job submission rejected", "Job submission rejected", statusFor(err))
		return
	}

	h.logger.Info("Job accepted",
		logging.String("job_id", exec.Job().ID()),
		logging.String("execution_id", exec.ID()))

	if wait > 0 && exec.Wait(wait) {
		h.sendJSONStatus(w, http.StatusOK, pipeline.Summarize(exec))
		return
	}

	w.Header().Set("Location", "/api/jobs/"+exec.ID())
	h.sendJSONStatus(w, http.StatusAccepted, pipeline.Summarize(exec))
}

// ListJobs returns the retained executions, newest first. ?status= keeps
// executions in that state; ?limit= caps the count.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	executions := h.engine.List()

	if status := r.URL.Query().Get("status"); status != "" {
		executions = lo.Filter(executions, func(exec *core.Execution, _ int) bool {
			return string(exec.Status()) == status
		})
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.sendJSONError(w, apperrors.ValidationError("limit must be a positive integer"),
				"Invalid limit parameter", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if limit < len(executions) {
			executions = executions[:limit]
		}
	}

	summaries := lo.Map(executions, func(exec *core.Execution, _ int) pipeline.ExecutionSummary {
		return pipeline.Summarize(exec)
	})

	h.sendJSONResponse(w, map[string]interface{}{
		"executions": summaries,
		"count":      len(summaries),
	})
}

// GetJob returns one execution summary
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, ok := h.engine.Get(id)
	if !ok {
		err := apperrors.NotFoundError("execution " + id)
		h.sendJSONError(w, err, "Execution lookup failed", "Execution not found", http.StatusNotFound)
		return
	}
	h.sendJSONResponse(w, pipeline.Summarize(exec))
}

// GetJobResult returns the result of a single node. It is 409 while the
// execution is still running.
func (h *Handlers) GetJobResult(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	exec, ok := h.engine.Get(vars["id"])
	if !ok {
		err := apperrors.NotFoundError("execution " + vars["id"])
		h.sendJSONError(w, err, "Execution lookup failed", "Execution not found", http.StatusNotFound)
		return
	}
	if !exec.IsDone() {
		err := apperrors.ConflictError("execution is still running")
		h.sendJSONError(w, err, "Result requested early", "Execution is still running", http.StatusConflict)
		return
	}

	result, ok := exec.Result(vars["node"])
	if !ok {
		err := apperrors.NotFoundError("result of node " + vars["node"])
		h.sendJSONError(w, err, "Result lookup failed", "Result not found", http.StatusNotFound)
		return
	}
	h.sendJSONResponse(w, map[string]interface{}{
		"execution_id": exec.ID(),
		"node_id":      vars["node"],
		"result":       result,
	})
}

// CancelJob requests an execution to stop. Cancelling a finished
// execution is a no-op.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.engine.Cancel(id); err != nil {
		h.sendJSONError(w, err, "Cancel failed", "Execution not found", statusFor(err))
		return
	}

	h.logger.Info("Job cancel requested", logging.String("execution_id", id))
	if exec, ok := h.engine.Get(id); ok {
		h.sendJSONStatus(w, http.StatusAccepted, pipeline.Summarize(exec))
		return
	}
	h.sendJSONStatus(w, http.StatusAccepted, map[string]string{"id": id})
}

// GetComponentTypes lists the component types jobs may use
func (h *Handlers) GetComponentTypes(w http.ResponseWriter, r *http.Request) {
	types := h.engine.Registry().Types()
	h.sendJSONResponse(w, map[string]interface{}{
		"types": types,
		"count": len(types),
	})
}

func parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, apperrors.ValidationError("invalid wait duration " + strconv.Quote(raw))
	}
	if d > maxWait {
		d = maxWait
	}
	return d, nil
}
