package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replaydev/rr-mcp/debugger"
	"github.com/replaydev/rr-mcp/paths"
)

// smokeCommands are the debugger commands the replay subcommand runs to
// exercise a trace end to end: continue to the crash, show the backtrace,
// move one frame up.
var smokeCommands = []string{"c", "bt", "up"}

func newReplayCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [trace-dir]",
		Short: "Replay a trace and run a quick command sequence",
		Long: `Replay a trace directory outside the MCP server and run a short command
sequence (continue, backtrace, up), printing each command's output. Useful
for checking that rr and a trace work before wiring up an agent.

Without an argument, rr's latest-trace directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			traceDir := ""
			if len(args) > 0 {
				traceDir = args[0]
			} else {
				traceDir, err = paths.DefaultTraceDir()
				if err != nil {
					return fmt.Errorf("failed to resolve default trace directory: %w", err)
				}
			}

			controller := debugger.NewController(cfg)
			defer controller.Close()

			session, err := controller.StartSession(cmd.Context(), traceDir)
			if err != nil {
				return err
			}
			fmt.Printf("replaying %s", session.TraceDir)
			if session.ExePath != "" {
				fmt.Printf(" (executable: %s)", session.ExePath)
			}
			fmt.Println()

			for _, c := range smokeCommands {
				output, err := controller.Run(c)
				if err != nil {
					return fmt.Errorf("command %q failed: %w", c, err)
				}
				fmt.Printf("--- %s ---\n%s\n", c, output)
			}
			return nil
		},
	}
}
