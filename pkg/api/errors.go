package api

import (
	"encoding/json"
	"net/http"

	"github.com/jguan/container-monitor/pkg/infra/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response", "error", err)
	}
}

// writeError sends {"status":"error","message":...}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, SettingsResponse{Status: "error", Message: message})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
