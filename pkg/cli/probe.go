package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jguan/container-monitor/pkg/alert"
	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/probe"
)

func NewProbeCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Sample the container once and print the reading",
		Long: `Run a single stats query and health check against the configured
container, without starting the scheduler or the HTTP server.`,
		Example: `  ctrmon probe --container web -o json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), root)
		},
	}
}

// probeView is a Reading plus its alert classification.
type probeView struct {
	Container      string    `json:"container" yaml:"container"`
	Status         string    `json:"status" yaml:"status"`
	CPUPercent     float64   `json:"cpu" yaml:"cpu"`
	MemoryPercent  float64   `json:"memory_percent" yaml:"memory_percent"`
	MemoryUsedMiB  float64   `json:"memory_used" yaml:"memory_used"`
	MemoryLimitMiB float64   `json:"memory_limit" yaml:"memory_limit"`
	ResponseTimeMs float64   `json:"response_time" yaml:"response_time"`
	Error          string    `json:"error,omitempty" yaml:"error,omitempty"`
	Severity       string    `json:"severity" yaml:"severity"`
	Alert          string    `json:"alert,omitempty" yaml:"alert,omitempty"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
}

func newProbeView(container string, r probe.Reading, th alert.Thresholds) probeView {
	v := probeView{
		Container:      container,
		Status:         r.Status.String(),
		CPUPercent:     r.CPUPercent,
		MemoryPercent:  r.MemoryPercent,
		MemoryUsedMiB:  r.MemoryUsedMiB,
		MemoryLimitMiB: r.MemoryLimitMiB,
		ResponseTimeMs: r.ResponseTimeMs,
		Severity:       string(alert.SeverityOK),
		Timestamp:      r.Timestamp,
	}
	if r.Cause != nil {
		v.Error = r.Cause.Error()
	}
	if rec, ok := alert.Evaluate(container, r, th); ok {
		v.Severity = string(rec.Severity)
		v.Alert = rec.Message
	}
	return v
}

func runProbe(ctx context.Context, root *RootCommand) error {
	cfg := root.Config()
	log := logger.Default()

	client, closeClient, err := root.clients(cfg.Monitor)
	if err != nil {
		return err
	}
	defer func() { _ = closeClient() }()

	health := probe.NewHTTPHealthChecker(cfg.Monitor.HealthURL, cfg.Monitor.HealthTimeoutD)
	p := probe.NewDockerProbe(client, health, probe.WithLogger(log))

	container := cfg.Monitor.ContainerName
	reading := p.Sample(ctx, container)

	return PrintOutput(newProbeView(container, reading, cfg.Thresholds()), root.OutputOptions())
}
