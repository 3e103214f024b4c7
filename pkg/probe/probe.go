package probe

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jguan/container-monitor/pkg/infra/docker"
	"github.com/jguan/container-monitor/pkg/infra/logger"
)

// StatsProbe samples one container. Implementations never return an error;
// failures are reported through Reading.Status and Reading.Cause.
type StatsProbe interface {
	Sample(ctx context.Context, container string) Reading
}

// DockerProbe samples a container through a docker.Client and a HealthChecker.
type DockerProbe struct {
	client docker.Client
	health HealthChecker
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*DockerProbe)

func WithLogger(l *slog.Logger) Option {
	return func(p *DockerProbe) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *DockerProbe) {
		if now != nil {
			p.now = now
		}
	}
}

func NewDockerProbe(client docker.Client, health HealthChecker, opts ...Option) *DockerProbe {
	p := &DockerProbe{
		client: client,
		health: health,
		logger: logger.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sample runs the stats query and, when it succeeds, the health check.
func (p *DockerProbe) Sample(ctx context.Context, container string) Reading {
	at := p.now()
	if logger.GetContainer(ctx) == "" {
		ctx = logger.SetContainer(ctx, container)
	}
	log := logger.With(p.logger, ctx)

	raw, err := p.client.Stats(ctx, container)
	if err != nil {
		cause := &Failure{Kind: classify(err), Err: err}
		log.Warn("stats query failed", "kind", cause.Kind, "error", err)
		return ErrorReading(at, cause)
	}

	r, err := ParseStats(raw)
	if err != nil {
		cause := &Failure{Kind: FailureMalformedOutput, Err: err}
		log.Warn("stats output rejected", "kind", cause.Kind, "error", err)
		return ErrorReading(at, cause)
	}
	r.Timestamp = at

	if p.health != nil {
		elapsed, err := p.health.Check(ctx, container)
		if err != nil {
			log.Debug("health check failed", "error", err)
		} else {
			r.ResponseTimeMs = float64(elapsed) / float64(time.Millisecond)
		}
	}

	return r
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, docker.ErrRuntimeUnavailable):
		return FailureRuntimeUnavailable
	case errors.Is(err, docker.ErrContainerNotFound):
		return FailureContainerNotFound
	default:
		return FailureCommandFailed
	}
}
