package alert

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LogWriter appends alert lines to the flat alert log read by the
// /api/alerts endpoint.
type LogWriter struct {
	mu   sync.Mutex
	path string
}

func NewLogWriter(path string) *LogWriter {
	return &LogWriter{path: path}
}

func (w *LogWriter) Path() string { return w.path }

// Write appends rec.Line() followed by a newline.
func (w *LogWriter) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create alerts dir: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alerts log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(rec.Line() + "\n"); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	return nil
}
