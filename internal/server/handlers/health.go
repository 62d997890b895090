package handlers

import "net/http"

// Version is stamped by the CLI at startup.
var Version = "dev"

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionInfo handles GET /version.
func VersionInfo(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": Version})
}
