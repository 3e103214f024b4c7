// Package probe samples a single container's resource usage and health.
//
// A probe never fails: runtime errors, unreachable daemons and malformed
// output all collapse into a Reading whose Status is StatusError, with the
// underlying cause kept on the Reading for diagnostics.
package probe

import (
	"fmt"
	"time"
)

// Status is the closed set of container states a Reading can report.
type Status int

const (
	StatusError Status = iota
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	default:
		return "error"
	}
}

// MarshalText encodes the status as "running" or "error".
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "running" and "error".
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "running":
		*s = StatusRunning
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// FailureKind classifies why a probe produced an error reading.
type FailureKind string

const (
	FailureRuntimeUnavailable FailureKind = "runtime_unavailable"
	FailureContainerNotFound  FailureKind = "container_not_found"
	FailureCommandFailed      FailureKind = "command_failed"
	FailureMalformedOutput    FailureKind = "malformed_output"
)

// Failure is the structured cause attached to an error reading.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Reading is one snapshot of the monitored container. Memory figures are MiB.
type Reading struct {
	CPUPercent     float64 `json:"cpu"`
	MemoryPercent  float64 `json:"memory_percent"`
	MemoryUsedMiB  float64 `json:"memory_used"`
	MemoryLimitMiB float64 `json:"memory_limit"`
	Status         Status  `json:"status"`
	ResponseTimeMs float64 `json:"response_time"`

	// Timestamp is when the sample was taken.
	Timestamp time.Time `json:"-"`
	// Cause is set only when Status is StatusError.
	Cause *Failure `json:"-"`
}

// Running reports whether the stats query succeeded.
func (r Reading) Running() bool {
	return r.Status == StatusRunning
}

// ErrorReading returns the all-zero sentinel reading for a failed probe.
func ErrorReading(at time.Time, cause *Failure) Reading {
	return Reading{
		Status:    StatusError,
		Timestamp: at,
		Cause:     cause,
	}
}
