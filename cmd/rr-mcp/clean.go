package main

import (
	"fmt"

	"github.com/spf13/cobra"

	rexec "github.com/replaydev/rr-mcp/exec"
	"github.com/replaydev/rr-mcp/logger"
	"github.com/replaydev/rr-mcp/replay"
)

func newCleanCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Kill orphaned rr replay processes",
		Long: `Find rr replay processes left behind by crashed sessions and kill them.
With --dry-run, only list what would be killed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cleaner := replay.NewCleaner(rexec.NewRealExecutor(), logger.WithComponent("clean"))

			if dryRun {
				orphans, err := cleaner.FindOrphans(cmd.Context(), nil)
				if err != nil {
					return err
				}
				if len(orphans) == 0 {
					fmt.Println("no orphaned replay processes found")
					return nil
				}
				for _, proc := range orphans {
					fmt.Printf("would kill %d: %s\n", proc.PID, proc.Command)
				}
				return nil
			}

			killed, err := cleaner.CleanupOrphans(cmd.Context(), nil)
			if err != nil {
				return err
			}
			fmt.Printf("killed %d orphaned replay process(es)\n", killed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphans without killing them")
	return cmd
}
