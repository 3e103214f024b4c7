package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/container-monitor/pkg/history"
	"github.com/jguan/container-monitor/pkg/infra/metrics"
	"github.com/jguan/container-monitor/pkg/monitor"
	"github.com/jguan/container-monitor/pkg/probe"
	"github.com/jguan/container-monitor/pkg/scheduler"
)

type fakeService struct {
	mu        sync.Mutex
	reading   probe.Reading
	uptime    []history.Point
	latency   []history.Point
	rows      []history.Record
	alerts    []string
	frequency int
	setErr    error
}

func newFakeService() *fakeService {
	return &fakeService{
		reading:   probe.ErrorReading(time.Time{}, nil),
		uptime:    []history.Point{},
		latency:   []history.Point{},
		rows:      []history.Record{},
		alerts:    []string{},
		frequency: 30,
	}
}

func (f *fakeService) Current() probe.Reading    { return f.reading }
func (f *fakeService) Uptime() []history.Point   { return f.uptime }
func (f *fakeService) Latency() []history.Point  { return f.latency }
func (f *fakeService) History() []history.Record { return f.rows }
func (f *fakeService) Alerts() []string          { return f.alerts }

func (f *fakeService) Frequency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frequency
}

func (f *fakeService) SetFrequency(seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	if err := scheduler.ValidateFrequency(seconds); err != nil {
		return err
	}
	f.frequency = seconds
	return nil
}

func (f *fakeService) Status() monitor.Status {
	return monitor.Status{
		Container:           "web",
		CollectionFrequency: f.Frequency(),
		Running:             true,
		TicksTotal:          3,
	}
}

func newTestServer(svc Service, exporter *metrics.Exporter) http.Handler {
	cfg := DefaultServerConfig()
	cfg.SettingsPerMinute = 0
	return NewServer(svc, exporter, cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStats_Sentinel(t *testing.T) {
	h := newTestServer(newFakeService(), nil)

	rec := do(t, h, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"cpu":0,"memory_percent":0,"memory_used":0,"memory_limit":0,"status":"error","response_time":0}`,
		rec.Body.String())
}

func TestStats_Running(t *testing.T) {
	svc := newFakeService()
	svc.reading = probe.Reading{
		CPUPercent:     12.5,
		MemoryPercent:  50,
		MemoryUsedMiB:  512,
		MemoryLimitMiB: 1024,
		Status:         probe.StatusRunning,
		ResponseTimeMs: 20,
	}

	rec := do(t, newTestServer(svc, nil), http.MethodGet, "/api/stats", "")
	assert.JSONEq(t,
		`{"cpu":12.5,"memory_percent":50,"memory_used":512,"memory_limit":1024,"status":"running","response_time":20}`,
		rec.Body.String())
}

func TestReadEndpoints_EmptyAreArrays(t *testing.T) {
	h := newTestServer(newFakeService(), nil)

	for _, path := range []string{"/api/alerts", "/api/history", "/api/uptime", "/api/latency"} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `[]`, rec.Body.String(), path)
	}
}

func TestReadEndpoints_Content(t *testing.T) {
	svc := newFakeService()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	svc.uptime = []history.Point{{Timestamp: at, Value: 100}}
	svc.latency = []history.Point{{Timestamp: at, Value: 21.5}}
	svc.rows = []history.Record{{"timestamp": "2024-03-01T12:00:00Z", "cpu_percent": "1.00", "memory_percent": "2.00"}}
	svc.alerts = []string{"2024-03-01 12:00:00 [WARNING] CPU high"}
	h := newTestServer(svc, nil)

	assert.JSONEq(t, `[{"timestamp":"2024-03-01 12:00:00","value":100}]`, do(t, h, http.MethodGet, "/api/uptime", "").Body.String())
	assert.JSONEq(t, `[{"timestamp":"2024-03-01 12:00:00","value":21.5}]`, do(t, h, http.MethodGet, "/api/latency", "").Body.String())
	assert.JSONEq(t, `[{"timestamp":"2024-03-01T12:00:00Z","cpu_percent":"1.00","memory_percent":"2.00"}]`,
		do(t, h, http.MethodGet, "/api/history", "").Body.String())
	assert.JSONEq(t, `["2024-03-01 12:00:00 [WARNING] CPU high"]`, do(t, h, http.MethodGet, "/api/alerts", "").Body.String())
}

func TestSettings_Update(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		code     int
		response string
	}{
		{"integer", `{"collection_frequency": 60}`, 200, `{"status":"success","collection_frequency":60}`},
		{"numeric string", `{"collection_frequency": "45"}`, 200, `{"status":"success","collection_frequency":45}`},
		{"integral float", `{"collection_frequency": 10.0}`, 200, `{"status":"success","collection_frequency":10}`},
		{"lower bound", `{"collection_frequency": 5}`, 200, `{"status":"success","collection_frequency":5}`},
		{"upper bound", `{"collection_frequency": 300}`, 200, `{"status":"success","collection_frequency":300}`},
		{"too small", `{"collection_frequency": 4}`, 400, `{"status":"error","message":"Frequency must be between 5 and 300 seconds"}`},
		{"too large", `{"collection_frequency": 301}`, 400, `{"status":"error","message":"Frequency must be between 5 and 300 seconds"}`},
		{"huge", `{"collection_frequency": 99999999999999}`, 400, `{"status":"error","message":"Frequency must be between 5 and 300 seconds"}`},
		{"non numeric", `{"collection_frequency": "fast"}`, 400, `{"status":"error","message":"Invalid frequency value"}`},
		{"fractional", `{"collection_frequency": 7.5}`, 400, `{"status":"error","message":"Invalid frequency value"}`},
		{"null", `{"collection_frequency": null}`, 400, `{"status":"error","message":"Invalid frequency value"}`},
		{"bool", `{"collection_frequency": true}`, 400, `{"status":"error","message":"Invalid frequency value"}`},
		{"missing key", `{"frequency": 60}`, 400, `{"status":"error","message":"Missing required parameters"}`},
		{"invalid json", `{`, 400, `{"status":"error","message":"Missing required parameters"}`},
		{"empty body", ``, 400, `{"status":"error","message":"Missing required parameters"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			h := newTestServer(svc, nil)

			rec := do(t, h, http.MethodPost, "/api/settings", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.response, rec.Body.String())
			if tt.code != http.StatusOK {
				assert.Equal(t, 30, svc.Frequency())
			}
		})
	}
}

func TestSettings_Get(t *testing.T) {
	svc := newFakeService()
	h := newTestServer(svc, nil)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/settings", `{"collection_frequency": 60}`).Code)

	rec := do(t, h, http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","collection_frequency":60}`, rec.Body.String())
}

func TestSettings_UnexpectedError(t *testing.T) {
	svc := newFakeService()
	svc.setErr = errors.New("boom")

	rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/settings", `{"collection_frequency": 60}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Internal server error"}`, rec.Body.String())
}

func TestSettings_RateLimited(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.SettingsPerMinute = 2
	h := NewServer(newFakeService(), nil, cfg).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/settings", `{"collection_frequency": 10}`).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/settings", `{"collection_frequency": 20}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/api/settings", `{"collection_frequency": 30}`).Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/settings", "").Code)
}

func TestAgent(t *testing.T) {
	rec := do(t, newTestServer(newFakeService(), nil), http.MethodGet, "/api/agent", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var st monitor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "web", st.Container)
	assert.Equal(t, 30, st.CollectionFrequency)
	assert.EqualValues(t, 3, st.TicksTotal)
	assert.Nil(t, st.LastTick)
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(newFakeService(), nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDashboard(t *testing.T) {
	rec := do(t, newTestServer(newFakeService(), nil), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>web</h1>")
	assert.Contains(t, body, `min="5"`)
	assert.Contains(t, body, `max="300"`)
	assert.Contains(t, body, `value="30"`)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestServer(newFakeService(), nil)

	rec := do(t, h, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/stats", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	exporter := metrics.NewExporter()
	h := newTestServer(newFakeService(), exporter)

	do(t, h, http.MethodGet, "/api/stats", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ctrmon_http_requests_total{code="200",method="GET",route="/api/stats"} 1`)

	assert.Equal(t, http.StatusNotFound, do(t, newTestServer(newFakeService(), nil), http.MethodGet, "/metrics", "").Code)
}

func TestRequestIDHeader(t *testing.T) {
	rec := do(t, newTestServer(newFakeService(), nil), http.MethodGet, "/api/stats", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ServeAndStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(newFakeService(), nil, DefaultServerConfig())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	client := NewClient("http://" + ln.Addr().String())
	require.Eventually(t, func() bool {
		_, err := client.Stats(context.Background())
		return err == nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
