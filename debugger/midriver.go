package debugger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/replaydev/rr-mcp/config"
	"github.com/replaydev/rr-mcp/mi"
	"github.com/replaydev/rr-mcp/replay"
)

// MIDriver drives a replay through rr's embedded gdb speaking GDB/MI over
// the back-end's stdio.
type MIDriver struct {
	backend *replay.Backend
	conn    Conn

	pollInterval time.Duration
	maxOutput    int
	grace        time.Duration
	log          *slog.Logger

	closeOnce sync.Once
}

// StartMI launches an MI-mode back-end for traceDir and waits for the
// initial stop that marks the debugger ready. A back-end that dies before
// reaching that stop is reported as a StartFailure with its stderr.
func StartMI(traceDir string, cfg config.Config, log *slog.Logger) (*MIDriver, error) {
	backend, err := replay.Start(traceDir, replay.Options{
		Mode:           replay.ModeMI,
		TerminateGrace: cfg.TerminateGrace.Std(),
	}, log)
	if err != nil {
		return nil, err
	}

	d := &MIDriver{
		backend:      backend,
		conn:         mi.NewChannel(backend.Stdin(), backend.Stdout(), log),
		pollInterval: cfg.PollInterval.Std(),
		maxOutput:    cfg.MaxOutputBytes,
		grace:        cfg.TerminateGrace.Std(),
		log:          log,
	}

	// rr's gdb announces readiness by stopping at the start of the trace.
	if _, err := WaitFor(d.conn, ReadyTargets(), d.pollInterval); err != nil {
		fail := &replay.StartFailure{
			Stderr: backend.CapturedStderr(),
			Err:    err,
		}
		backend.Terminate()
		return nil, fail
	}

	log.Info("replay session ready", "pid", backend.Pid())
	return d, nil
}

// Run executes one debugger command and blocks until it settles, returning
// the truncated user-visible output.
func (d *MIDriver) Run(cmd string) (string, error) {
	d.log.Info("running command", "cmd", cmd)

	records, err := RunAndWait(d.conn, cmd, DefaultTargets(), d.pollInterval)
	output := Truncate(Settle(records), d.maxOutput)
	if err != nil {
		if errors.Is(err, mi.ErrClosed) {
			return output, fmt.Errorf("replay back-end exited during %q", cmd)
		}
		return output, err
	}
	return output, nil
}

// Pid returns the back-end's process ID.
func (d *MIDriver) Pid() int { return d.backend.Pid() }

// Close ends the session: ask gdb to exit and wait for the debuggee's
// thread group to go away, then make sure the back-end is really gone.
// Safe to call multiple times.
func (d *MIDriver) Close() {
	d.closeOnce.Do(func() {
		d.log.Info("closing replay session", "pid", d.backend.Pid())

		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := RunAndWait(d.conn, "exit", ExitTargets(), d.pollInterval); err != nil {
				d.log.Debug("exit command did not settle cleanly", "error", err)
			}
		}()

		// Terminate kills the process if the exit command stalls, which
		// closes the stream and unblocks the waiter.
		select {
		case <-done:
		case <-time.After(d.grace):
			d.log.Warn("exit command timed out, terminating back-end")
		}
		d.backend.Terminate()
	})
}
