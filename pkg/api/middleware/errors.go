package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody matches the {"status":"error","message":...} body used by the
// API handlers.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Status: "error", Message: message})
}
