package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jguan/container-monitor/pkg/alert"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctrmon.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "monitored-app", cfg.Monitor.ContainerName)
	assert.Equal(t, 30, cfg.Monitor.CollectionFrequency)
	assert.Equal(t, RuntimeCLI, cfg.Monitor.Runtime)
	assert.Equal(t, "/var/log/container_metrics.csv", cfg.History.MetricsFile)
	assert.Equal(t, "/var/log/container_alerts.log", cfg.History.AlertsFile)
	assert.Equal(t, 100, cfg.History.MaxPoints)
	assert.Equal(t, 50, cfg.History.HistoryLimit)
	assert.Equal(t, 10, cfg.History.AlertsLimit)
	assert.Equal(t, "0.0.0.0:8001", cfg.API.ListenAddr)
	assert.Equal(t, alert.DefaultThresholds(), cfg.Thresholds())
}

func TestLoad_DefaultsValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Monitor.HealthTimeoutD)
	assert.Equal(t, 15*time.Second, cfg.API.ReadTimeoutD)
	assert.Equal(t, time.Second, cfg.History.TailCacheTTLD)
	assert.Equal(t, 30, cfg.API.SettingsPerMinute)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[monitor]
container_name = "web"
collection_frequency = 60
runtime = "SDK"
health_timeout = "2s"

[history]
metrics_file = "/tmp/m.csv"
max_points = 20
tail_cache_ttl = "0s"

[alert]
write_log = true
cpu_warning = 50
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "web", cfg.Monitor.ContainerName)
	assert.Equal(t, 60, cfg.Monitor.CollectionFrequency)
	assert.Equal(t, RuntimeSDK, cfg.Monitor.Runtime)
	assert.Equal(t, 2*time.Second, cfg.Monitor.HealthTimeoutD)
	assert.Equal(t, "/tmp/m.csv", cfg.History.MetricsFile)
	assert.Equal(t, "/var/log/container_alerts.log", cfg.History.AlertsFile)
	assert.Equal(t, 20, cfg.History.MaxPoints)
	assert.Zero(t, cfg.History.TailCacheTTLD)
	assert.True(t, cfg.Alert.WriteLog)
	assert.Equal(t, 50.0, cfg.Thresholds().CPUWarning)
	assert.Equal(t, 90.0, cfg.Thresholds().CPUCritical)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeConfig(t, "[monitor\nbroken"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeConfig(t, "[monitor]\nhealth_timeout = \"soon\"\n"))
	assert.Error(t, err)
}

func TestLoad_ClampsFrequency(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{1, 5},
		{0, 5},
		{1000, 300},
	}
	for _, tt := range tests {
		path := writeConfig(t, "[monitor]\ncollection_frequency = "+strconv.Itoa(tt.in)+"\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cfg.Monitor.CollectionFrequency)
		require.Len(t, cfg.Warnings, 1)
		assert.Contains(t, cfg.Warnings[0], "Frequency must be between 5 and 300 seconds")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CONTAINER_NAME", "api")
	t.Setenv("COLLECTION_FREQUENCY", "10")
	t.Setenv("CTRMON_METRICS_FILE", "/data/metrics.csv")
	t.Setenv("CTRMON_ALERTS_FILE", "/data/alerts.log")
	t.Setenv("CTRMON_LISTEN", "127.0.0.1:9000")
	t.Setenv("CTRMON_HEALTH_URL", "http://{container}:8080/ping")
	t.Setenv("CTRMON_RUNTIME", "sdk")
	t.Setenv("CTRMON_LOG_LEVEL", "debug")
	t.Setenv("CTRMON_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.Monitor.ContainerName)
	assert.Equal(t, 10, cfg.Monitor.CollectionFrequency)
	assert.Equal(t, "/data/metrics.csv", cfg.History.MetricsFile)
	assert.Equal(t, "/data/alerts.log", cfg.History.AlertsFile)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.ListenAddr)
	assert.Equal(t, "http://{container}:8080/ping", cfg.Monitor.HealthURL)
	assert.Equal(t, RuntimeSDK, cfg.Monitor.Runtime)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyEnvOverrides_KeepsUnsetFields(t *testing.T) {
	cfg := Default()
	cfg.Monitor.ContainerName = "from-file"
	require.NoError(t, ApplyEnvOverrides(cfg))
	assert.Equal(t, "from-file", cfg.Monitor.ContainerName)
}

func TestApplyEnvOverrides_BadNumber(t *testing.T) {
	t.Setenv("COLLECTION_FREQUENCY", "often")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty container", func(c *Config) { c.Monitor.ContainerName = " " }},
		{"bad runtime", func(c *Config) { c.Monitor.Runtime = "podman" }},
		{"health timeout too long", func(c *Config) { c.Monitor.HealthTimeoutD = 10 * time.Second }},
		{"zero max points", func(c *Config) { c.History.MaxPoints = 0 }},
		{"zero alerts limit", func(c *Config) { c.History.AlertsLimit = 0 }},
		{"inverted cpu", func(c *Config) { c.Alert.CPUWarning = 95 }},
		{"negative latency", func(c *Config) { c.Alert.LatencyWarningMs = -1 }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"frequency out of range", func(c *Config) { c.Monitor.CollectionFrequency = 301 }},
		{"negative tail cache ttl", func(c *Config) { c.History.TailCacheTTLD = -time.Second }},
		{"negative settings limit", func(c *Config) { c.API.SettingsPerMinute = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/logs/alerts.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs", "alerts.log"), got)

	got, err = expandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = expandPath("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
