package probe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

const bytesPerMiB = 1024 * 1024

// ErrMalformedStats is returned when the stats output cannot be interpreted.
var ErrMalformedStats = errors.New("malformed stats output")

// statsRow holds the fields the parser needs; pointers distinguish a
// missing field from an empty one.
type statsRow struct {
	CPUPerc  *string `json:"CPUPerc"`
	MemUsage *string `json:"MemUsage"`
}

// ParseStats interprets the output of a single-container stats query. The
// output must contain exactly one JSON row carrying CPUPerc and MemUsage.
// The returned reading has StatusRunning and no response time.
func ParseStats(raw []byte) (Reading, error) {
	var rows [][]byte
	for _, line := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			rows = append(rows, line)
		}
	}
	if len(rows) != 1 {
		return Reading{}, fmt.Errorf("%w: expected exactly one stats row, got %d", ErrMalformedStats, len(rows))
	}

	var row statsRow
	if err := json.Unmarshal(rows[0], &row); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrMalformedStats, err)
	}
	if row.CPUPerc == nil {
		return Reading{}, fmt.Errorf("%w: missing CPUPerc", ErrMalformedStats)
	}
	if row.MemUsage == nil {
		return Reading{}, fmt.Errorf("%w: missing MemUsage", ErrMalformedStats)
	}

	used, limit, err := ParseMemUsage(*row.MemUsage)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		CPUPercent:     ParseCPUPercent(*row.CPUPerc),
		MemoryPercent:  MemoryPercent(used, limit),
		MemoryUsedMiB:  used,
		MemoryLimitMiB: limit,
		Status:         StatusRunning,
	}, nil
}

// ParseCPUPercent parses values like "12.34%". Unparsable input yields 0.
func ParseCPUPercent(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseMemUsage splits a "used / limit" pair and normalizes both sides to
// MiB. Either side that fails to parse is reported as 0; only a value
// without a separator is an error.
func ParseMemUsage(s string) (usedMiB, limitMiB float64, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: memory usage %q is not a used / limit pair", ErrMalformedStats, s)
	}
	return ParseSizeMiB(parts[0]), ParseSizeMiB(parts[1]), nil
}

// ParseSizeMiB converts a size with a unit suffix ("512MiB", "1.5GiB",
// "800kB") to MiB. Unparsable input yields 0.
func ParseSizeMiB(s string) float64 {
	b, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil || b < 0 {
		return 0
	}
	return float64(b) / bytesPerMiB
}

// MemoryPercent returns used/limit*100, or 0 when the limit is not positive.
func MemoryPercent(usedMiB, limitMiB float64) float64 {
	if limitMiB <= 0 {
		return 0
	}
	return usedMiB / limitMiB * 100
}
