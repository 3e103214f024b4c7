package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jguan/container-monitor/pkg/alert"
	"github.com/jguan/container-monitor/pkg/history"
	"github.com/jguan/container-monitor/pkg/probe"
	"github.com/jguan/container-monitor/pkg/scheduler"
)

const (
	RuntimeCLI = "cli"
	RuntimeSDK = "sdk"
)

type Config struct {
	Monitor MonitorConfig `toml:"monitor"`
	History HistoryConfig `toml:"history"`
	Alert   AlertConfig   `toml:"alert"`
	API     APIConfig     `toml:"api"`
	Logging LoggingConfig `toml:"logging"`

	// Warnings collects non-fatal adjustments made while loading, for the
	// caller to log once the logger is configured.
	Warnings []string `toml:"-"`
}

type MonitorConfig struct {
	ContainerName       string        `toml:"container_name" env:"CONTAINER_NAME"`
	CollectionFrequency int           `toml:"collection_frequency" env:"COLLECTION_FREQUENCY"`
	HealthURL           string        `toml:"health_url" env:"CTRMON_HEALTH_URL"`
	HealthTimeout       string        `toml:"health_timeout"`
	Runtime             string        `toml:"runtime" env:"CTRMON_RUNTIME"`
	DockerBinary        string        `toml:"docker_binary"`
	SeedHistory         bool          `toml:"seed_history"`
	HealthTimeoutD      time.Duration `toml:"-"`
}

type HistoryConfig struct {
	MetricsFile   string `toml:"metrics_file" env:"CTRMON_METRICS_FILE"`
	AlertsFile    string `toml:"alerts_file" env:"CTRMON_ALERTS_FILE"`
	MaxPoints     int    `toml:"max_points"`
	HistoryLimit  int    `toml:"history_limit"`
	AlertsLimit   int    `toml:"alerts_limit"`
	RecordMetrics bool   `toml:"record_metrics"`
	// TailCacheTTL bounds how stale /api/history and /api/alerts may be
	// when the logs are written by another process; "0s" disables caching.
	TailCacheTTL  string        `toml:"tail_cache_ttl"`
	TailCacheTTLD time.Duration `toml:"-"`
}

type AlertConfig struct {
	Enabled           bool    `toml:"enabled"`
	WriteLog          bool    `toml:"write_log"`
	CPUWarning        float64 `toml:"cpu_warning"`
	CPUCritical       float64 `toml:"cpu_critical"`
	MemoryWarning     float64 `toml:"memory_warning"`
	MemoryCritical    float64 `toml:"memory_critical"`
	LatencyWarningMs  float64 `toml:"latency_warning_ms"`
	LatencyCriticalMs float64 `toml:"latency_critical_ms"`
}

type APIConfig struct {
	ListenAddr string `toml:"listen_addr" env:"CTRMON_LISTEN"`
	EnableCORS bool   `toml:"enable_cors"`
	// SettingsPerMinute caps POST /api/settings per client; 0 disables the limit.
	SettingsPerMinute int           `toml:"settings_per_minute"`
	ReadTimeout       string        `toml:"read_timeout"`
	WriteTimeout      string        `toml:"write_timeout"`
	ReadTimeoutD      time.Duration `toml:"-"`
	WriteTimeoutD     time.Duration `toml:"-"`
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"CTRMON_LOG_LEVEL"`
	Format string `toml:"format" env:"CTRMON_LOG_FORMAT"`
}

func Default() *Config {
	th := alert.DefaultThresholds()

	return &Config{
		Monitor: MonitorConfig{
			ContainerName:       "monitored-app",
			CollectionFrequency: scheduler.DefaultFrequency,
			HealthURL:           probe.DefaultHealthURL,
			HealthTimeout:       "5s",
			Runtime:             RuntimeCLI,
			DockerBinary:        "docker",
			SeedHistory:         false,
		},
		History: HistoryConfig{
			MetricsFile:   "/var/log/container_metrics.csv",
			AlertsFile:    "/var/log/container_alerts.log",
			MaxPoints:     history.DefaultMaxPoints,
			HistoryLimit:  history.DefaultHistoryLimit,
			AlertsLimit:   history.DefaultAlertsLimit,
			RecordMetrics: false,
			TailCacheTTL:  "1s",
		},
		Alert: AlertConfig{
			Enabled:           true,
			WriteLog:          false,
			CPUWarning:        th.CPUWarning,
			CPUCritical:       th.CPUCritical,
			MemoryWarning:     th.MemoryWarning,
			MemoryCritical:    th.MemoryCritical,
			LatencyWarningMs:  th.LatencyWarningMs,
			LatencyCriticalMs: th.LatencyCriticalMs,
		},
		API: APIConfig{
			ListenAddr:        "0.0.0.0:8001",
			EnableCORS:        true,
			SettingsPerMinute: 30,
			ReadTimeout:       "15s",
			WriteTimeout:      "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	return cfg, nil
}

// Thresholds returns the alert limits from the [alert] section.
func (c *Config) Thresholds() alert.Thresholds {
	return alert.Thresholds{
		CPUWarning:        c.Alert.CPUWarning,
		CPUCritical:       c.Alert.CPUCritical,
		MemoryWarning:     c.Alert.MemoryWarning,
		MemoryCritical:    c.Alert.MemoryCritical,
		LatencyWarningMs:  c.Alert.LatencyWarningMs,
		LatencyCriticalMs: c.Alert.LatencyCriticalMs,
	}
}

func (c *Config) postProcess() error {
	var err error

	c.Monitor.HealthTimeoutD, err = time.ParseDuration(c.Monitor.HealthTimeout)
	if err != nil {
		return fmt.Errorf("parse monitor.health_timeout: %w", err)
	}
	if c.History.TailCacheTTLD, err = time.ParseDuration(c.History.TailCacheTTL); err != nil {
		return fmt.Errorf("parse history.tail_cache_ttl: %w", err)
	}
	if c.API.ReadTimeoutD, err = time.ParseDuration(c.API.ReadTimeout); err != nil {
		return fmt.Errorf("parse api.read_timeout: %w", err)
	}
	if c.API.WriteTimeoutD, err = time.ParseDuration(c.API.WriteTimeout); err != nil {
		return fmt.Errorf("parse api.write_timeout: %w", err)
	}

	if c.History.MetricsFile, err = expandPath(c.History.MetricsFile); err != nil {
		return fmt.Errorf("expand history.metrics_file: %w", err)
	}
	if c.History.AlertsFile, err = expandPath(c.History.AlertsFile); err != nil {
		return fmt.Errorf("expand history.alerts_file: %w", err)
	}

	c.Monitor.Runtime = strings.ToLower(strings.TrimSpace(c.Monitor.Runtime))

	if freq := c.Monitor.CollectionFrequency; scheduler.ValidateFrequency(freq) != nil {
		clamped := scheduler.ClampFrequency(freq)
		c.Monitor.CollectionFrequency = clamped
		c.Warnings = append(c.Warnings, fmt.Sprintf(
			"collection_frequency %d out of range, using %d (%s)", freq, clamped, scheduler.FrequencyRangeMessage))
	}

	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Monitor.ContainerName) == "" {
		return fmt.Errorf("monitor.container_name must not be empty")
	}
	if err := scheduler.ValidateFrequency(c.Monitor.CollectionFrequency); err != nil {
		return err
	}
	if c.Monitor.Runtime != RuntimeCLI && c.Monitor.Runtime != RuntimeSDK {
		return fmt.Errorf("invalid monitor.runtime: %s (valid: cli, sdk)", c.Monitor.Runtime)
	}
	if c.Monitor.HealthTimeoutD <= 0 || c.Monitor.HealthTimeoutD > probe.MaxHealthTimeout {
		return fmt.Errorf("monitor.health_timeout must be in (0, %s], got %s", probe.MaxHealthTimeout, c.Monitor.HealthTimeoutD)
	}
	if c.History.MaxPoints < 1 {
		return fmt.Errorf("history.max_points must be at least 1, got %d", c.History.MaxPoints)
	}
	if c.History.HistoryLimit < 1 || c.History.AlertsLimit < 1 {
		return fmt.Errorf("history.history_limit and history.alerts_limit must be at least 1, got %d and %d",
			c.History.HistoryLimit, c.History.AlertsLimit)
	}
	if c.History.TailCacheTTLD < 0 {
		return fmt.Errorf("history.tail_cache_ttl cannot be negative, got %s", c.History.TailCacheTTLD)
	}
	if c.History.MetricsFile == "" || c.History.AlertsFile == "" {
		return fmt.Errorf("history.metrics_file and history.alerts_file must be set")
	}
	if err := validatePair("cpu", c.Alert.CPUWarning, c.Alert.CPUCritical); err != nil {
		return err
	}
	if err := validatePair("memory", c.Alert.MemoryWarning, c.Alert.MemoryCritical); err != nil {
		return err
	}
	if err := validatePair("latency", c.Alert.LatencyWarningMs, c.Alert.LatencyCriticalMs); err != nil {
		return err
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr must not be empty")
	}
	if c.API.SettingsPerMinute < 0 {
		return fmt.Errorf("api.settings_per_minute cannot be negative, got %d", c.API.SettingsPerMinute)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

func validatePair(name string, warning, critical float64) error {
	if warning < 0 || critical < 0 {
		return fmt.Errorf("alert %s thresholds cannot be negative", name)
	}
	if warning > 0 && critical > 0 && warning > critical {
		return fmt.Errorf("alert %s warning threshold %.1f exceeds critical %.1f", name, warning, critical)
	}
	return nil
}

// ApplyEnvOverrides overwrites fields whose environment variable is set
// and non-empty.
func ApplyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get user home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.Warnings = nil
	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
