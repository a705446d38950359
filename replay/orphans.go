package replay

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	rexec "github.com/replaydev/rr-mcp/exec"
)

// Process is a running rr replay process found on the system.
type Process struct {
	PID     int    // Process ID
	Command string // Full command line
}

// Cleaner finds and removes rr replay processes left behind by crashed
// sessions. Command execution is injected for testability.
type Cleaner struct {
	executor rexec.CommandExecutor
	log      *slog.Logger
}

// NewCleaner creates a Cleaner using the given executor.
func NewCleaner(executor rexec.CommandExecutor, log *slog.Logger) *Cleaner {
	return &Cleaner{executor: executor, log: log}
}

// FindReplayProcesses lists all rr replay processes currently running.
func (c *Cleaner) FindReplayProcesses(ctx context.Context) ([]Process, error) {
	output, err := c.executor.Output(ctx, "", "pgrep", "-f", "rr replay")
	if err != nil {
		// pgrep exits 1 when nothing matches
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	var processes []Process
	for _, pidStr := range strings.Fields(string(output)) {
		pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
		if err != nil {
			continue
		}

		psOut, err := c.executor.Output(ctx, "", "ps", "-p", pidStr, "-o", "args=")
		if err != nil {
			continue
		}

		processes = append(processes, Process{
			PID:     pid,
			Command: strings.TrimSpace(string(psOut)),
		})
	}

	c.log.Debug("found replay processes", "count", len(processes))
	return processes, nil
}

// FindOrphans lists rr replay processes whose PID is not in keep.
func (c *Cleaner) FindOrphans(ctx context.Context, keep map[int]bool) ([]Process, error) {
	all, err := c.FindReplayProcesses(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []Process
	for _, proc := range all {
		if keep[proc.PID] {
			continue
		}
		orphans = append(orphans, proc)
		c.log.Info("found orphaned replay process", "pid", proc.PID, "command", proc.Command)
	}
	return orphans, nil
}

// KillProcess kills a process by PID.
func (c *Cleaner) KillProcess(ctx context.Context, pid int) error {
	_, _, err := c.executor.Run(ctx, "", "kill", "-9", strconv.Itoa(pid))
	return err
}

// CleanupOrphans kills every rr replay process not in keep and returns the
// number killed.
func (c *Cleaner) CleanupOrphans(ctx context.Context, keep map[int]bool) (int, error) {
	orphans, err := c.FindOrphans(ctx, keep)
	if err != nil {
		return 0, err
	}

	killed := 0
	for _, proc := range orphans {
		c.log.Info("killing orphaned replay process", "pid", proc.PID)
		if err := c.KillProcess(ctx, proc.PID); err != nil {
			c.log.Error("failed to kill process", "pid", proc.PID, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}
