// Package alert classifies readings against thresholds and appends alert
// lines to the flat alert log.
package alert

import (
	"fmt"

	"github.com/jguan/container-monitor/pkg/probe"
)

// Evaluate classifies r against th. It returns the most severe breach and
// true, or a zero Record and false when the reading is within limits. A
// reading with StatusError is always critical. Evaluate is pure; the
// record carries the reading's own timestamp.
func Evaluate(container string, r probe.Reading, th Thresholds) (Record, bool) {
	if r.Status != probe.StatusRunning {
		msg := fmt.Sprintf("Container %s is not reporting stats", container)
		if r.Cause != nil {
			msg = fmt.Sprintf("%s (%s)", msg, r.Cause.Kind)
		}
		return Record{
			Container: container,
			Severity:  SeverityCritical,
			Metric:    MetricStatus,
			Message:   msg,
			Timestamp: r.Timestamp,
		}, true
	}

	checks := []struct {
		metric   Metric
		label    string
		unit     string
		value    float64
		warning  float64
		critical float64
	}{
		{MetricCPU, "CPU usage", "%", r.CPUPercent, th.CPUWarning, th.CPUCritical},
		{MetricMemory, "Memory usage", "%", r.MemoryPercent, th.MemoryWarning, th.MemoryCritical},
		{MetricLatency, "Response time", "ms", r.ResponseTimeMs, th.LatencyWarningMs, th.LatencyCriticalMs},
	}

	var worst Record
	for _, c := range checks {
		sev, limit := classify(c.value, c.warning, c.critical)
		if sev.rank() <= worst.Severity.rank() {
			continue
		}
		worst = Record{
			Container: container,
			Severity:  sev,
			Metric:    c.metric,
			Value:     c.value,
			Threshold: limit,
			Message: fmt.Sprintf("%s for %s is %.1f%s (threshold %.1f%s)",
				c.label, container, c.value, c.unit, limit, c.unit),
			Timestamp: r.Timestamp,
		}
	}

	if worst.Severity.rank() == 0 {
		return Record{}, false
	}
	return worst, true
}

func classify(value, warning, critical float64) (Severity, float64) {
	switch {
	case critical > 0 && value >= critical:
		return SeverityCritical, critical
	case warning > 0 && value >= warning:
		return SeverityWarning, warning
	default:
		return SeverityOK, 0
	}
}
