package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jguan/container-monitor/pkg/monitor"
	"github.com/jguan/container-monitor/pkg/probe"
)

// Client talks to a running agent's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from the agent.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agent returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("agent returned HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *Client) Status(ctx context.Context) (monitor.Status, error) {
	var st monitor.Status
	err := c.do(ctx, http.MethodGet, "/api/agent", nil, &st)
	return st, err
}

func (c *Client) Stats(ctx context.Context) (probe.Reading, error) {
	var r probe.Reading
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &r)
	return r, err
}

func (c *Client) Alerts(ctx context.Context) ([]string, error) {
	var lines []string
	err := c.do(ctx, http.MethodGet, "/api/alerts", nil, &lines)
	return lines, err
}

// Frequency returns the agent's current collection frequency in seconds.
func (c *Client) Frequency(ctx context.Context) (int, error) {
	var resp SettingsResponse
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &resp); err != nil {
		return 0, err
	}
	return resp.CollectionFrequency, nil
}

// SetFrequency changes the agent's collection frequency.
func (c *Client) SetFrequency(ctx context.Context, seconds int) (int, error) {
	body := map[string]int{"collection_frequency": seconds}
	var resp SettingsResponse
	if err := c.do(ctx, http.MethodPost, "/api/settings", body, &resp); err != nil {
		return 0, err
	}
	return resp.CollectionFrequency, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e SettingsResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
