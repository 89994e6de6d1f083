package handlers

import "net/http"

// NewRouter registers the sync and health endpoints on a fresh mux.
// Middleware is layered on top by the caller.
func NewRouter(sync *SyncHandler, health *HealthHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sync/batch", sync.Batch)
	mux.HandleFunc("GET /sync/changes/{client_id}", sync.Changes)
	mux.HandleFunc("GET /sync/status/{client_id}", sync.Status)
	mux.HandleFunc("POST /sync/ping", sync.Ping)
	mux.HandleFunc("GET /health", health.Health)

	return mux
}
