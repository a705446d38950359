package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replaydev/rr-mcp/cli"
	"github.com/replaydev/rr-mcp/paths"
)

func newDoctorCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites and show the resolved environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := cli.CheckAll(cli.DefaultPrerequisites())
			fmt.Print(cli.FormatCheckResults(results))

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			fmt.Println("\nConfiguration:")
			fmt.Printf("  mode: %s\n", cfg.Mode)
			fmt.Printf("  remote port: %d\n", cfg.RemotePort)
			fmt.Printf("  poll interval: %s\n", cfg.PollInterval.Std())

			if configPath, err := paths.ConfigFilePath(); err == nil {
				fmt.Printf("  config file: %s\n", configPath)
			}
			if logsDir, err := paths.LogsDir(); err == nil {
				fmt.Printf("  logs dir: %s\n", logsDir)
			}
			if traceDir, err := paths.DefaultTraceDir(); err == nil {
				fmt.Printf("  default trace dir: %s\n", traceDir)
			}

			for _, r := range results {
				if r.Prerequisite.Required && !r.Found {
					return fmt.Errorf("required tool %s is missing", r.Prerequisite.Name)
				}
			}
			return nil
		},
	}
}
