package pipeline

import (
	"time"

	"analysis-engine/internal/pipeline/core"
)

// ExecutionSummary is the JSON view of an execution
type ExecutionSummary struct {
	ID          string                 `json:"id"`
	JobID       string                 `json:"job_id"`
	JobName     string                 `json:"job_name"`
	Status      core.Status            `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	DurationMS  int64                  `json:"duration_ms"`
	Results     map[string]core.Result `json:"results,omitempty"`
	Errors      []string               `json:"errors,omitempty"`
	Rejects     []core.RejectSummary   `json:"rejects,omitempty"`
	RejectCount int64                  `json:"reject_count"`
}

// Summarize captures the current state of exec. Results are included only
// once the execution is done.
func Summarize(exec *core.Execution) ExecutionSummary {
	s := ExecutionSummary{
		ID:          exec.ID(),
		JobID:       exec.Job().ID(),
		JobName:     exec.Job().Name(),
		Status:      exec.Status(),
		StartedAt:   exec.StartedAt(),
		DurationMS:  exec.Duration().Milliseconds(),
		Rejects:     exec.Rejects(),
		RejectCount: exec.RejectCount(),
	}
	if exec.IsDone() {
		s.Results = exec.Results()
	}
	for _, err := range exec.Errors() {
		s.Errors = append(s.Errors, err.Error())
	}
	return s
}
