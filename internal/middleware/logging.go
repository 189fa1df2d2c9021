// Package middleware holds HTTP middleware shared by the API routes
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"analysis-engine/internal/common/logging"
)

// RequestIDHeader carries the request id back to the caller
const RequestIDHeader = "X-Request-ID"

// statusRecorder captures the status code written by the handler
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logging logs every request with method, path, status and duration.
// Requests without an X-Request-ID get a fresh one.
func Logging(logger logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			fields := []logging.Field{
				logging.String("request_id", requestID),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", wrapped.statusCode),
				logging.Int64("duration_ms", time.Since(start).Milliseconds()),
				logging.String("remote_addr", r.RemoteAddr),
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, logging.String("query", r.URL.RawQuery))
			}
			if ua := r.Header.Get("User-Agent"); ua != "" {
				fields = append(fields, logging.String("user_agent", ua))
			}

			switch {
			case wrapped.statusCode >= 500:
				logger.Error("HTTP request completed", nil, fields...)
			case wrapped.statusCode >= 400:
				logger.Warn("HTTP request completed", fields...)
			default:
				logger.Info("HTTP request completed", fields...)
			}
		})
	}
}
