package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/replaydev/rr-mcp/config"
	"github.com/replaydev/rr-mcp/logger"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	defer logger.Close()

	cmd := newRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	debug      bool
	logFile    string
	configPath string
	mode       string
	port       int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "rr-mcp",
		Short:         "MCP server exposing the rr record-and-replay debugger",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	pf := root.PersistentFlags()
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	pf.StringVar(&opts.logFile, "log-file", "", "log file path (default: logs dir under the state directory)")
	pf.StringVar(&opts.configPath, "config", "", "config file path (default: config.yaml under the config directory)")
	pf.StringVar(&opts.mode, "mode", "", "debugger mode: mi or lldb (overrides config)")
	pf.IntVar(&opts.port, "port", 0, "gdbserver port for lldb mode (overrides config)")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logPath := opts.logFile
		if logPath == "" {
			var err error
			logPath, err = logger.DefaultLogPath()
			if err != nil {
				return fmt.Errorf("failed to resolve log path: %w", err)
			}
		}
		if err := logger.Init(logPath); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.SetDebug(opts.debug)

		logger.Get().Debug("command invocation", "command", cmd.Name())
		return nil
	}

	root.AddCommand(
		newServeCommand(opts),
		newReplayCommand(opts),
		newCleanCommand(opts),
		newDoctorCommand(opts),
	)

	return root
}

// loadConfig loads the configuration file and applies flag overrides.
func loadConfig(opts *rootOptions) (config.Config, error) {
	var cfg config.Config
	var err error

	if opts.configPath != "" {
		cfg, err = config.LoadFrom(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if opts.port != 0 {
		cfg.RemotePort = opts.port
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
