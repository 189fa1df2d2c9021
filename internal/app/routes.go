package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/handlers"
	"analysis-engine/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application. Submissions
// are rate limited per client when limiter is not nil; metrics are served
// when gatherer is not nil.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, logger logging.Logger, limiter *middleware.RateLimiter, gatherer prometheus.Gatherer) {
	router.Use(middleware.Logging(logger))

	if limiter != nil {
		submit := limiter.Middleware(middleware.ClientKey)
		router.Methods("POST").Path("/api/jobs").Handler(submit(http.HandlerFunc(h.SubmitJob)))
	}

	h.Register(router)

	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}
