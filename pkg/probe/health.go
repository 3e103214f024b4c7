package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// MaxHealthTimeout bounds a single health request.
	MaxHealthTimeout = 5 * time.Second

	// DefaultHealthURL is expanded with the container name.
	DefaultHealthURL = "http://{container}/health"
)

// HealthChecker measures how long the container takes to answer its health endpoint.
type HealthChecker interface {
	Check(ctx context.Context, container string) (time.Duration, error)
}

// HTTPHealthChecker issues a GET against the container's health endpoint.
// Any HTTP response counts as an answer; only transport failures and
// timeouts are errors.
type HTTPHealthChecker struct {
	client      *http.Client
	urlTemplate string
	timeout     time.Duration
}

// NewHTTPHealthChecker creates a checker. urlTemplate may contain
// "{container}"; timeout is capped at MaxHealthTimeout.
func NewHTTPHealthChecker(urlTemplate string, timeout time.Duration) *HTTPHealthChecker {
	if urlTemplate == "" {
		urlTemplate = DefaultHealthURL
	}
	if timeout <= 0 || timeout > MaxHealthTimeout {
		timeout = MaxHealthTimeout
	}
	return &HTTPHealthChecker{
		client:      &http.Client{Timeout: timeout},
		urlTemplate: urlTemplate,
		timeout:     timeout,
	}
}

// URL returns the health endpoint for container.
func (h *HTTPHealthChecker) URL(container string) string {
	return strings.ReplaceAll(h.urlTemplate, "{container}", container)
}

// Check performs one request and returns the elapsed wall-clock time.
func (h *HTTPHealthChecker) Check(ctx context.Context, container string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(container), nil)
	if err != nil {
		return 0, fmt.Errorf("build health request: %w", err)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("health request: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return time.Since(start), nil
}
