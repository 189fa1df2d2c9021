// Package handlers exposes the analysis engine over HTTP: submitting job
// definitions, inspecting and cancelling executions, and health checks.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "analysis-engine/internal/common/errors"
	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline"
	pipelineerrors "analysis-engine/internal/pipeline/errors"
)

// maxDefinitionSize caps the body of a job submission
const maxDefinitionSize = 4 << 20

type Handlers struct {
	engine *pipeline.Engine
	logger logging.Logger
}

func New(engine *pipeline.Engine, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handlers{
		engine: engine,
		logger: logger.WithFields(logging.String("component", "http")),
	}
}

// ErrorResponse is the body of every non 2xx JSON response
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, data interface{}) {
	h.sendJSONStatus(w, http.StatusOK, data)
}

func (h *Handlers) sendJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendJSONError logs logMsg with err and answers with userMsg
func (h *Handlers) sendJSONError(w http.ResponseWriter, err error, logMsg, userMsg string, status int) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, err, logging.Int("status", status))
	} else {
		h.logger.Debug(logMsg, logging.Int("status", status), logging.Err(err))
	}

	resp := ErrorResponse{Error: userMsg}
	if err != nil {
		resp.Type = errorType(err)
		resp.Details = err.Error()
	}
	h.sendJSONStatus(w, status, resp)
}

// statusFor maps engine and application errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, pipeline.ErrNotStarted):
		return http.StatusServiceUnavailable
	case pipelineerrors.IsGraphError(err), pipelineerrors.IsConfigurationError(err):
		return http.StatusBadRequest
	}

	switch apperrors.GetType(err) {
	case apperrors.ErrTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrTypeValidation, apperrors.ErrTypeConfig:
		return http.StatusBadRequest
	case apperrors.ErrTypeConflict:
		return http.StatusConflict
	case apperrors.ErrTypeDataSource, apperrors.ErrTypeStorage:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorType(err error) string {
	switch {
	case pipelineerrors.IsGraphError(err):
		return "graph"
	case pipelineerrors.IsConfigurationError(err):
		return "configuration"
	case pipelineerrors.IsRowError(err):
		return "row"
	case pipelineerrors.IsUnknownError(err):
		return "unknown"
	}
	return string(apperrors.GetType(err))
}
