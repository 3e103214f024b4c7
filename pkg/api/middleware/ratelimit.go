package middleware

import (
	"net"
	"net/http"

	"github.com/jguan/container-monitor/pkg/infra/ratelimit"
)

// RateLimit answers 429 once the client's bucket is empty. The key is the
// client IP without port.
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, err := limiter.Allow(clientIP(r)); err != nil || !ok {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the remote host without port, or "unknown".
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
