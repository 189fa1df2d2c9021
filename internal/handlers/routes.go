package handlers

import (
	"github.com/gorilla/mux"
)

// Register mounts the job API and the health check on router
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/components", h.GetComponentTypes).Methods("GET")
	api.HandleFunc("/jobs", h.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.CancelJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id}/results/{node}", h.GetJobResult).Methods("GET")
}
