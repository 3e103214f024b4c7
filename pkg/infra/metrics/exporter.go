package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jguan/container-monitor/pkg/probe"
)

const namespace = "ctrmon"

// Exporter publishes readings and HTTP traffic as Prometheus metrics on
// its own registry.
type Exporter struct {
	registry *prometheus.Registry

	cpuPercent     *prometheus.GaugeVec
	memoryPercent  *prometheus.GaugeVec
	memoryUsedMiB  *prometheus.GaugeVec
	memoryLimitMiB *prometheus.GaugeVec
	responseTimeMs *prometheus.GaugeVec
	up             *prometheus.GaugeVec
	ticks          *prometheus.CounterVec
	alerts         *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewExporter() *Exporter {
	containerGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "container",
			Name:      name,
			Help:      help,
		}, []string{"container"})
	}

	e := &Exporter{
		registry:       prometheus.NewRegistry(),
		cpuPercent:     containerGauge("cpu_percent", "CPU usage of the monitored container in percent"),
		memoryPercent:  containerGauge("memory_percent", "Memory usage of the monitored container in percent of its limit"),
		memoryUsedMiB:  containerGauge("memory_used_mib", "Memory used by the monitored container in MiB"),
		memoryLimitMiB: containerGauge("memory_limit_mib", "Memory limit of the monitored container in MiB"),
		responseTimeMs: containerGauge("response_time_ms", "Health endpoint round-trip time in milliseconds"),
		up:             containerGauge("up", "1 when the last tick produced a running reading"),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Collection ticks by outcome",
		}, []string{"status"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by severity",
		}, []string{"container", "severity"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route"}),
	}

	e.registry.MustRegister(
		e.cpuPercent,
		e.memoryPercent,
		e.memoryUsedMiB,
		e.memoryLimitMiB,
		e.responseTimeMs,
		e.up,
		e.ticks,
		e.alerts,
		e.httpRequests,
		e.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// ObserveReading updates the container gauges and tick counter.
func (e *Exporter) ObserveReading(container string, r probe.Reading) {
	e.ticks.WithLabelValues(r.Status.String()).Inc()

	up := 0.0
	if r.Running() {
		up = 1
	}
	e.up.WithLabelValues(container).Set(up)
	e.cpuPercent.WithLabelValues(container).Set(r.CPUPercent)
	e.memoryPercent.WithLabelValues(container).Set(r.MemoryPercent)
	e.memoryUsedMiB.WithLabelValues(container).Set(r.MemoryUsedMiB)
	e.memoryLimitMiB.WithLabelValues(container).Set(r.MemoryLimitMiB)
	e.responseTimeMs.WithLabelValues(container).Set(r.ResponseTimeMs)
}

func (e *Exporter) ObserveAlert(container, severity string) {
	e.alerts.WithLabelValues(container, severity).Inc()
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path.
func (e *Exporter) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	e.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	e.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}
