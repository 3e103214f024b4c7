package alert

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Metric names the reading field a record was raised for.
type Metric string

const (
	MetricStatus  Metric = "status"
	MetricCPU     Metric = "cpu"
	MetricMemory  Metric = "memory"
	MetricLatency Metric = "latency"
)

// Thresholds are the warning/critical limits a reading is checked against.
// A zero limit disables that check.
type Thresholds struct {
	CPUWarning        float64 `json:"cpu_warning"`
	CPUCritical       float64 `json:"cpu_critical"`
	MemoryWarning     float64 `json:"memory_warning"`
	MemoryCritical    float64 `json:"memory_critical"`
	LatencyWarningMs  float64 `json:"latency_warning_ms"`
	LatencyCriticalMs float64 `json:"latency_critical_ms"`
}

// DefaultThresholds provides default monitoring thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarning:        70,
		CPUCritical:       90,
		MemoryWarning:     80,
		MemoryCritical:    95,
		LatencyWarningMs:  1000,
		LatencyCriticalMs: 3000,
	}
}

// Record is one alert raised for a reading.
type Record struct {
	Container string    `json:"container"`
	Severity  Severity  `json:"severity"`
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// LineTimeLayout is the timestamp format of alert log lines.
const LineTimeLayout = "2006-01-02 15:04:05"

// Line renders the record as one alert log line.
func (r Record) Line() string {
	return fmt.Sprintf("%s [%s] %s", r.Timestamp.Format(LineTimeLayout), strings.ToUpper(string(r.Severity)), r.Message)
}
