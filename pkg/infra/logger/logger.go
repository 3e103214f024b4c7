// Package logger wraps log/slog for the agent. One process-wide logger is
// configured from the [logging] section; HTTP handlers derive request
// scoped loggers from the context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	containerKey
	tickKey
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
	mu            sync.RWMutex
)

type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to os.Stderr.
	Output    io.Writer
	AddSource bool
}

// Init configures the default logger. Only the first call takes effect
// until Reset is called.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {
		defaultLogger = New(cfg)
		slog.SetDefault(defaultLogger)
	})
}

// Reset drops the configured logger so Init can run again. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	once = sync.Once{}
	defaultLogger = nil
}

// New builds a logger without touching the process default.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the configured logger, or slog.Default() before Init.
func Default() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return slog.Default()
	}
	return l
}

// WithContext returns Default() enriched from ctx, see With.
func WithContext(ctx context.Context) *slog.Logger {
	return With(Default(), ctx)
}

// With adds request_id, container and tick to l when ctx carries them.
func With(l *slog.Logger, ctx context.Context) *slog.Logger {
	if rid := GetRequestID(ctx); rid != "" {
		l = l.With("request_id", rid)
	}
	if c := GetContainer(ctx); c != "" {
		l = l.With("container", c)
	}
	if n, ok := GetTick(ctx); ok {
		l = l.With("tick", n)
	}
	return l
}

func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func SetContainer(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, containerKey, name)
}

func GetContainer(ctx context.Context) string {
	if name, ok := ctx.Value(containerKey).(string); ok {
		return name
	}
	return ""
}

// SetTick tags ctx with the sequence number of a collection tick.
func SetTick(ctx context.Context, n uint64) context.Context {
	return context.WithValue(ctx, tickKey, n)
}

func GetTick(ctx context.Context) (uint64, bool) {
	n, ok := ctx.Value(tickKey).(uint64)
	return n, ok
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
