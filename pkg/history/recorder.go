package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jguan/container-monitor/pkg/probe"
)

// MetricsColumns is the header of metrics logs written by CSVRecorder.
var MetricsColumns = []string{
	"timestamp",
	"container",
	"cpu_percent",
	"memory_percent",
	"memory_used_mib",
	"memory_limit_mib",
	"status",
	"response_time_ms",
}

// CSVRecorder appends one row per reading to a metrics log. The file is
// opened per write so external rotation is picked up.
type CSVRecorder struct {
	mu   sync.Mutex
	path string
}

func NewCSVRecorder(path string) *CSVRecorder {
	return &CSVRecorder{path: path}
}

// Path returns the metrics log location.
func (r *CSVRecorder) Path() string { return r.path }

// Write appends reading as a row, writing the header first when the file is new or empty.
func (r *CSVRecorder) Write(container string, reading probe.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open metrics log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat metrics log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(MetricsColumns); err != nil {
			return fmt.Errorf("write metrics header: %w", err)
		}
	}

	ts := reading.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	row := []string{
		ts.Format(time.RFC3339),
		container,
		formatFloat(reading.CPUPercent),
		formatFloat(reading.MemoryPercent),
		formatFloat(reading.MemoryUsedMiB),
		formatFloat(reading.MemoryLimitMiB),
		reading.Status.String(),
		formatFloat(reading.ResponseTimeMs),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write metrics row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
