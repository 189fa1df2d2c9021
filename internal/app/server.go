package app

import (
	"github.com/gorilla/mux"

	"analysis-engine/internal/handlers"
	"analysis-engine/internal/middleware"
	"analysis-engine/internal/server"
)

// Router builds the HTTP handler tree for the app
func (app *App) Router() *mux.Router {
	h := handlers.New(app.Engine, app.Environment.Logger)

	var limiter *middleware.RateLimiter
	if app.Config.SubmitRateLimit > 0 {
		limiter = middleware.NewRateLimiter(float64(app.Config.SubmitRateLimit), app.Config.SubmitRateBurst)
	}

	router := mux.NewRouter()
	if app.Config.MetricsEnabled {
		SetupRoutes(router, h, app.Environment.Logger, limiter, app.Registry)
	} else {
		SetupRoutes(router, h, app.Environment.Logger, limiter, nil)
	}
	return router
}

// RunServer creates the HTTP server for the app
func (app *App) RunServer() *server.Server {
	return server.New(app.Router(), app.Config.Port)
}
