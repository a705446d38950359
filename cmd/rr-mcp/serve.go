package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/replaydev/rr-mcp/cli"
	"github.com/replaydev/rr-mcp/config"
	"github.com/replaydev/rr-mcp/debugger"
	"github.com/replaydev/rr-mcp/logger"
	"github.com/replaydev/rr-mcp/mcp"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Run the MCP server loop on stdin/stdout for an agent host to drive.

Stdout carries the JSON-RPC stream, so all diagnostics go to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			if err := validatePrerequisites(cfg); err != nil {
				return err
			}

			controller := debugger.NewController(cfg)
			defer controller.Close()

			log := logger.WithComponent("serve")
			log.Info("starting MCP server", "mode", cfg.Mode)

			server := mcp.NewServer(os.Stdin, os.Stdout, controller)
			return server.Run()
		},
	}
}

// validatePrerequisites checks the external tools the configured mode needs.
func validatePrerequisites(cfg config.Config) error {
	prereqs := cli.DefaultPrerequisites()
	if cfg.Mode == config.ModeLLDB {
		for i := range prereqs {
			if prereqs[i].Name == "lldb" {
				prereqs[i].Required = true
			}
		}
	}
	if err := cli.ValidateRequired(prereqs); err != nil {
		return fmt.Errorf("prerequisite check failed: %w", err)
	}
	return nil
}
