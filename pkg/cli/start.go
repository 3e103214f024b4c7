package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jguan/container-monitor/pkg/alert"
	"github.com/jguan/container-monitor/pkg/api"
	"github.com/jguan/container-monitor/pkg/config"
	"github.com/jguan/container-monitor/pkg/history"
	"github.com/jguan/container-monitor/pkg/infra/docker"
	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/infra/metrics"
	"github.com/jguan/container-monitor/pkg/monitor"
	"github.com/jguan/container-monitor/pkg/probe"
)

const (
	pingTimeout     = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// clientFactory opens the runtime backend named in the config. The
// returned close function is never nil.
type clientFactory func(cfg config.MonitorConfig) (docker.Client, func() error, error)

func newRuntimeClient(cfg config.MonitorConfig) (docker.Client, func() error, error) {
	switch cfg.Runtime {
	case config.RuntimeSDK:
		c, err := docker.NewSDKClient()
		if err != nil {
			return nil, nil, fmt.Errorf("create docker SDK client: %w", err)
		}
		return c, c.Close, nil
	default:
		return docker.NewSimpleClient(cfg.DockerBinary), func() error { return nil }, nil
	}
}

func NewStartCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the monitoring agent",
		Long: `Start sampling the configured container and serve the JSON API,
the dashboard and the Prometheus endpoint until interrupted.`,
		Example: `  # Monitor the default container
  ctrmon start

  # Monitor "web" every 10 seconds on port 9000
  ctrmon start --container web --frequency 10 --addr :9000

  # Use a config file
  ctrmon start --config /etc/ctrmon/ctrmon.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), root)
		},
	}

	return cmd
}

func runStart(ctx context.Context, root *RootCommand) error {
	cfg := root.Config()
	log := logger.Default()
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	client, closeClient, err := root.clients(cfg.Monitor)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeClient(); err != nil {
			log.Warn("close runtime client", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.API.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.API.ListenAddr, err)
	}

	a, err := newAgent(cfg, client, log)
	if err != nil {
		_ = ln.Close()
		return err
	}
	return a.Run(ctx, ln)
}

// agent is the wired process: one monitor and its HTTP server.
type agent struct {
	cfg     *config.Config
	client  docker.Client
	monitor *monitor.Monitor
	server  *api.Server
	logger  *slog.Logger
}

func newAgent(cfg *config.Config, client docker.Client, log *slog.Logger) (*agent, error) {
	health := probe.NewHTTPHealthChecker(cfg.Monitor.HealthURL, cfg.Monitor.HealthTimeoutD)
	p := probe.NewDockerProbe(client, health, probe.WithLogger(log))

	store := history.NewStore(history.Options{
		MaxPoints:    cfg.History.MaxPoints,
		MetricsFile:  cfg.History.MetricsFile,
		AlertsFile:   cfg.History.AlertsFile,
		HistoryLimit: cfg.History.HistoryLimit,
		AlertsLimit:  cfg.History.AlertsLimit,
		TailTTL:      cfg.History.TailCacheTTLD,
	})

	exporter := metrics.NewExporter()
	opts := monitor.Options{
		Container:     cfg.Monitor.ContainerName,
		Frequency:     cfg.Monitor.CollectionFrequency,
		Probe:         p,
		Store:         store,
		Thresholds:    cfg.Thresholds(),
		AlertsEnabled: cfg.Alert.Enabled,
		Exporter:      exporter,
		SeedHistory:   cfg.Monitor.SeedHistory,
		Logger:        log,
	}
	if cfg.History.RecordMetrics {
		opts.Recorder = history.NewCSVRecorder(cfg.History.MetricsFile)
	}
	if cfg.Alert.WriteLog {
		opts.AlertLog = alert.NewLogWriter(cfg.History.AlertsFile)
	}

	mon, err := monitor.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create monitor: %w", err)
	}

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.API.ListenAddr
	serverCfg.ReadTimeout = cfg.API.ReadTimeoutD
	serverCfg.WriteTimeout = cfg.API.WriteTimeoutD
	serverCfg.EnableCORS = cfg.API.EnableCORS
	serverCfg.SettingsPerMinute = cfg.API.SettingsPerMinute
	serverCfg.Logger = log

	return &agent{
		cfg:     cfg,
		client:  client,
		monitor: mon,
		server:  api.NewServer(mon, exporter, serverCfg),
		logger:  log,
	}, nil
}

// Run starts the scheduler and serves on ln until ctx is cancelled or the
// server fails.
func (a *agent) Run(ctx context.Context, ln net.Listener) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	if err := a.client.Ping(pingCtx); err != nil {
		a.logger.Warn("container runtime not reachable, readings will report errors", "error", err)
	}
	cancel()

	g, gctx := errgroup.WithContext(ctx)

	if err := a.monitor.Start(gctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start monitor: %w", err)
	}
	a.logger.Info("monitoring container",
		"container", a.cfg.Monitor.ContainerName,
		"frequency", a.monitor.Frequency(),
		"runtime", a.cfg.Monitor.Runtime,
	)

	g.Go(func() error {
		return a.server.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.monitor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("agent stopped")
	return nil
}
