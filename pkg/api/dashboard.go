package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/scheduler"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

type dashboardData struct {
	Container    string
	Frequency    int
	MinFrequency int
	MaxFrequency int
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Container:    h.svc.Status().Container,
		Frequency:    h.svc.Frequency(),
		MinFrequency: scheduler.MinFrequency,
		MaxFrequency: scheduler.MaxFrequency,
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		logger.WithContext(r.Context()).Error("render dashboard", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
