// Package api serves the monitor over JSON/HTTP, the Prometheus scrape
// endpoint and the dashboard page.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jguan/container-monitor/pkg/api/middleware"
	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/infra/metrics"
	"github.com/jguan/container-monitor/pkg/infra/ratelimit"
)

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	EnableCORS      bool
	CORSConfig      middleware.CORSConfig
	// SettingsPerMinute limits POST /api/settings per client IP; 0 disables it.
	SettingsPerMinute int
	Logger            *slog.Logger
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              "0.0.0.0:8001",
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		EnableCORS:        true,
		CORSConfig:        middleware.DefaultCORSConfig(),
		SettingsPerMinute: 30,
	}
}

type Server struct {
	config   ServerConfig
	handler  http.Handler
	http     *http.Server
	logger   *slog.Logger
	exporter *metrics.Exporter
}

// NewServer builds the router. exporter may be nil, in which case
// /metrics is not served.
func NewServer(svc Service, exporter *metrics.Exporter, config ServerConfig) *Server {
	defaults := DefaultServerConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.CORSConfig.AllowedOrigins == nil {
		config.CORSConfig = defaults.CORSConfig
	}
	if config.Logger == nil {
		config.Logger = logger.Default()
	}

	s := &Server{
		config:   config,
		logger:   config.Logger,
		exporter: exporter,
	}
	s.handler = s.routes(&handlers{svc: svc})
	s.http = &http.Server{
		Addr:         config.Addr,
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) routes(h *handlers) http.Handler {
	r := chi.NewRouter()

	// Recovery is outermost so it catches panics from any middleware.
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	if s.exporter != nil {
		r.Use(middleware.Metrics(s.exporter))
	}
	if s.config.EnableCORS {
		r.Use(middleware.CORS(s.config.CORSConfig))
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/", h.dashboard)
	r.Get("/healthz", h.healthz)
	if s.exporter != nil {
		r.Method(http.MethodGet, "/metrics", s.exporter.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/alerts", h.alerts)
		r.Get("/history", h.history)
		r.Get("/uptime", h.uptime)
		r.Get("/latency", h.latency)
		r.Get("/agent", h.agent)
		r.Get("/settings", h.getSettings)
		r.Group(func(r chi.Router) {
			if s.config.SettingsPerMinute > 0 {
				r.Use(middleware.RateLimit(ratelimit.PerMinute(s.config.SettingsPerMinute)))
			}
			r.Post("/settings", h.updateSettings)
		})
	})

	return r
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. It returns nil after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", slog.String("addr", ln.Addr().String()))

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
