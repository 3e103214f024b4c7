package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jguan/container-monitor/pkg/infra/logger"
)

const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID propagates an incoming X-Request-ID or assigns a new UUID, and
// stores it in the request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.SetRequestID(r.Context(), id)))
	})
}
