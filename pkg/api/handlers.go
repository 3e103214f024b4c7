package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/jguan/container-monitor/pkg/history"
	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/monitor"
	"github.com/jguan/container-monitor/pkg/probe"
	"github.com/jguan/container-monitor/pkg/scheduler"
)

const (
	MsgInvalidFrequency  = "Invalid frequency value"
	MsgMissingParameters = "Missing required parameters"

	maxSettingsBody = 64 << 10
)

// Service is the monitor state read and written by the handlers.
type Service interface {
	Current() probe.Reading
	Uptime() []history.Point
	Latency() []history.Point
	History() []history.Record
	Alerts() []string
	Frequency() int
	SetFrequency(seconds int) error
	Status() monitor.Status
}

type handlers struct {
	svc Service
}

// SettingsResponse is the body of every /api/settings response.
type SettingsResponse struct {
	Status              string `json:"status"`
	CollectionFrequency int    `json:"collection_frequency,omitempty"`
	Message             string `json:"message,omitempty"`
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Current())
}

func (h *handlers) alerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Alerts())
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.History())
}

func (h *handlers) uptime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Uptime())
}

func (h *handlers) latency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Latency())
}

func (h *handlers) agent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SettingsResponse{
		Status:              "success",
		CollectionFrequency: h.svc.Frequency(),
	})
}

func (h *handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	seconds, err := decodeFrequency(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetFrequency(seconds); err != nil {
		var verr *scheduler.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		logger.WithContext(r.Context()).Error("apply collection frequency", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		Status:              "success",
		CollectionFrequency: seconds,
	})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type settingsError string

func (e settingsError) Error() string { return string(e) }

// decodeFrequency reads {"collection_frequency": <int-like>}. A JSON
// integer, an integral float or a numeric string are accepted.
func decodeFrequency(body io.Reader) (int, error) {
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return 0, settingsError(MsgMissingParameters)
	}
	raw, ok := payload["collection_frequency"]
	if !ok {
		return 0, settingsError(MsgMissingParameters)
	}

	raw = bytes.TrimSpace(raw)
	var text string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, settingsError(MsgInvalidFrequency)
		}
		text = strings.TrimSpace(text)
		n, err := strconv.Atoi(text)
		if err != nil {
			return 0, settingsError(MsgInvalidFrequency)
		}
		return n, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, settingsError(MsgInvalidFrequency)
	}
	if n, err := num.Int64(); err == nil {
		return clampInt(n), nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, settingsError(MsgInvalidFrequency)
	}
	return clampInt(int64(f)), nil
}

// clampInt keeps huge values out of range rather than wrapping them into it.
func clampInt(n int64) int {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	default:
		return int(n)
	}
}
