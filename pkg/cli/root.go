// Package cli implements the ctrmon command line: the agent itself
// ("start") and small clients for a running agent.
package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jguan/container-monitor/pkg/config"
	"github.com/jguan/container-monitor/pkg/infra/logger"
	"github.com/jguan/container-monitor/pkg/scheduler"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

type RootCommand struct {
	cmd     *cobra.Command
	v       *viper.Viper
	cfg     *config.Config
	opts    *OutputOptions
	clients clientFactory
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{
		v:       viper.New(),
		opts:    NewOutputOptions(),
		clients: newRuntimeClient,
	}

	cmd := &cobra.Command{
		Use:   "ctrmon",
		Short: "ctrmon - single container monitor",
		Long: `ctrmon samples one container's CPU, memory and health latency on a
fixed schedule, keeps a short rolling history and serves it over a JSON
API with a small dashboard.`,
		PersistentPreRunE: root.persistentPreRunE,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pflags := cmd.PersistentFlags()
	pflags.StringP("output", "o", "table", "Output format (table, json, yaml)")
	pflags.BoolP("quiet", "q", false, "Suppress output")
	pflags.String("config", "", "Config file path (TOML)")
	pflags.String("addr", "", "Agent listen address (default from config)")
	pflags.String("container", "", "Container to monitor (default from config)")
	pflags.Int("frequency", scheduler.DefaultFrequency, "Collection frequency in seconds")

	bindFlags(root.v, pflags)

	root.cmd = cmd
	root.addSubCommands()

	return root
}

// bindFlags binds every flag in fs to v under its own name. Each key may
// also be set through a CTRMON_ prefixed environment variable.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
	v.SetEnvPrefix("CTRMON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(r.v.GetString("output"))
	if err != nil {
		return err
	}
	r.opts.Format = format
	r.opts.Quiet = r.v.GetBool("quiet")

	r.cfg, err = config.Load(r.v.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.applyFlagOverrides()

	logger.Init(logger.Config{
		Level:  r.cfg.Logging.Level,
		Format: r.cfg.Logging.Format,
	})
	return nil
}

// applyFlagOverrides lets explicitly set flags win over file and
// environment configuration.
func (r *RootCommand) applyFlagOverrides() {
	if r.v.IsSet("addr") {
		if addr := r.v.GetString("addr"); addr != "" {
			r.cfg.API.ListenAddr = addr
		}
	}
	if r.v.IsSet("container") {
		if name := strings.TrimSpace(r.v.GetString("container")); name != "" {
			r.cfg.Monitor.ContainerName = name
		}
	}
	if r.v.IsSet("frequency") {
		freq := r.v.GetInt("frequency")
		clamped := scheduler.ClampFrequency(freq)
		if clamped != freq {
			r.cfg.Warnings = append(r.cfg.Warnings, fmt.Sprintf(
				"--frequency %d out of range, using %d (%s)", freq, clamped, scheduler.FrequencyRangeMessage))
		}
		r.cfg.Monitor.CollectionFrequency = clamped
	}
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewVersionCommand(r))
	r.cmd.AddCommand(NewStartCommand(r))
	r.cmd.AddCommand(NewStatusCommand(r))
	r.cmd.AddCommand(NewSettingsCommand(r))
	r.cmd.AddCommand(NewProbeCommand(r))
}

func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

func (r *RootCommand) Config() *config.Config {
	return r.cfg
}

func (r *RootCommand) OutputOptions() *OutputOptions {
	return r.opts
}

func (r *RootCommand) SetOutputWriter(w interface{ Write([]byte) (int, error) }) {
	r.opts.Writer = w
}

// AgentURL is the base URL of the agent named by --addr or api.listen_addr.
func (r *RootCommand) AgentURL() string {
	return agentURL(r.cfg.API.ListenAddr)
}

func agentURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (r *RootCommand) Execute() error {
	return r.cmd.Execute()
}

func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	return r.cmd.ExecuteContext(ctx)
}

func Execute() {
	root := NewRootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		PrintError(err, root.opts)
		stop()
		os.Exit(1)
	}
}

func SetVersion(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}

func GetVersion() string {
	return cliVersion
}

func GetBuildDate() string {
	return cliBuildDate
}

func GetGitCommit() string {
	return cliGitCommit
}
