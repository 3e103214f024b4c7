package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jguan/container-monitor/pkg/infra/logger"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func wrap(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Status() int {
	if rw.statusCode == 0 {
		return http.StatusOK
	}
	return rw.statusCode
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func Logging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			if log == nil {
				return
			}

			status := rw.Status()
			logAttrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if requestID := logger.GetRequestID(r.Context()); requestID != "" {
				logAttrs = append(logAttrs, slog.String("request_id", requestID))
			}

			// Dashboard polling is noisy; successful reads log at debug.
			logLevel := slog.LevelDebug
			switch {
			case status >= 500:
				logLevel = slog.LevelError
			case status >= 400:
				logLevel = slog.LevelWarn
			case r.Method != http.MethodGet:
				logLevel = slog.LevelInfo
			}

			log.LogAttrs(r.Context(), logLevel, "HTTP request", logAttrs...)
		})
	}
}
