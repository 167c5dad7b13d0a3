package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter returns a router serving the API under /api and a health check.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	SetupRoutes(r, h)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	return r
}

// SetupRoutes registers the API endpoints on r.
func SetupRoutes(r *mux.Router, h *Handler) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/generate", h.Generate).Methods("POST")
	api.HandleFunc("/tech-stacks", h.TechStacks).Methods("GET")
	api.HandleFunc("/tasks", h.ListTasks).Methods("GET")
	api.HandleFunc("/task/{id}", h.GetTask).Methods("GET")
	api.HandleFunc("/task/{id}/stream", h.StreamTask).Methods("GET")
	api.HandleFunc("/task/{id}/cancel", h.CancelTask).Methods("POST")
	api.HandleFunc("/task/{id}/resume", h.ResumeTask).Methods("POST")
	api.HandleFunc("/download/{id}/{doc}", h.Download).Methods("GET")
}
