// Package replay manages rr replay back-end processes.
//
// A back-end is one `rr replay` invocation for one trace directory. It runs
// in one of two modes: MI mode, where rr embeds gdb speaking the Machine
// Interface protocol on its stdio, and server mode, where rr exposes a
// gdbserver remote stub on a loopback port for an external debugger
// front-end to connect to.
package replay

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Mode selects how the back-end exposes its debugger.
type Mode int

const (
	// ModeMI runs rr with an embedded gdb on stdio speaking GDB/MI.
	ModeMI Mode = iota
	// ModeServer runs rr as a gdbserver remote stub on a loopback port.
	ModeServer
)

// Options configures a back-end launch.
type Options struct {
	Mode Mode

	// Port is the gdbserver listen port in server mode. Ignored in MI mode.
	Port int

	// TerminateGrace bounds how long Terminate waits for a graceful exit
	// before force-killing.
	TerminateGrace time.Duration
}

// StartFailure reports a back-end that exited during startup, carrying
// whatever diagnostics it wrote before dying.
type StartFailure struct {
	Stdout string
	Stderr string
	Err    error
}

func (e *StartFailure) Error() string {
	msg := "rr replay exited during startup"
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s\nstderr: %s", msg, e.Stderr)
	}
	if e.Stdout != "" {
		msg = fmt.Sprintf("%s\nstdout: %s", msg, e.Stdout)
	}
	return msg
}

func (e *StartFailure) Unwrap() error { return e.Err }

// BuildReplayArgs builds the rr command line for a trace directory.
// Exported for testing argument construction.
func BuildReplayArgs(traceDir string, opts Options) []string {
	if opts.Mode == ModeServer {
		return []string{"replay", "-s", fmt.Sprintf("%d", opts.Port), traceDir}
	}
	return []string{
		"replay",
		"-i=mi",
		"--debugger-option=--interpreter=mi3",
		traceDir,
	}
}

// Backend is a running rr replay process.
//
// In MI mode, Stdin and Stdout expose the protocol pipes for a message
// channel; stderr is drained in the background for diagnostics. In server
// mode all output is drained and retained, since the protocol flows over
// the remote port instead.
type Backend struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	stdoutBuf bytes.Buffer // server mode only
	stderrBuf bytes.Buffer

	// waitDone is closed by monitorExit when cmd.Wait() completes.
	// Terminate selects on this channel instead of calling cmd.Wait()
	// itself, so Wait() is never called twice.
	waitDone chan struct{}
	waitErr  error
}

// Start launches `rr replay` for the given trace directory.
func Start(traceDir string, opts Options, log *slog.Logger) (*Backend, error) {
	args := BuildReplayArgs(traceDir, opts)
	log.Info("starting replay back-end", "command", "rr "+strings.Join(args, " "))

	cmd := exec.Command("rr", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start rr replay: %w", err)
	}

	b := &Backend{
		opts:     opts,
		log:      log,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		waitDone: make(chan struct{}),
	}

	go b.drain(stderr, &b.stderrBuf, "stderr")
	if opts.Mode == ModeServer {
		go b.drain(stdout, &b.stdoutBuf, "stdout")
	}
	go b.monitorExit()

	log.Info("replay back-end started", "pid", cmd.Process.Pid)
	return b, nil
}

// Stdin returns the back-end's stdin pipe. Only meaningful in MI mode.
func (b *Backend) Stdin() io.Writer { return b.stdin }

// Stdout returns the back-end's stdout pipe. Only meaningful in MI mode;
// in server mode stdout is drained internally.
func (b *Backend) Stdout() io.Reader { return b.stdout }

// Pid returns the back-end's process ID, or 0 if it never started.
func (b *Backend) Pid() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Running reports whether the back-end process has not yet exited.
func (b *Backend) Running() bool {
	select {
	case <-b.waitDone:
		return false
	default:
		return true
	}
}

// CheckStartup waits up to delay for an early exit. If the back-end dies
// within the window, a StartFailure carrying its captured output is
// returned; surviving the window returns nil.
func (b *Backend) CheckStartup(delay time.Duration) error {
	select {
	case <-b.waitDone:
		return b.startFailure()
	case <-time.After(delay):
		return nil
	}
}

// startFailure builds a StartFailure from the exit state and captured output.
func (b *Backend) startFailure() *StartFailure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &StartFailure{
		Stdout: strings.TrimSpace(b.stdoutBuf.String()),
		Stderr: strings.TrimSpace(b.stderrBuf.String()),
		Err:    b.waitErr,
	}
}

// CapturedStderr returns the stderr output collected so far.
func (b *Backend) CapturedStderr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.stderrBuf.String())
}

// CapturedStdout returns the stdout output collected so far (server mode).
func (b *Backend) CapturedStdout() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.stdoutBuf.String())
}

// Terminate shuts the back-end down: close stdin and send SIGTERM, wait up
// to the configured grace period for a clean exit, then force-kill. Safe to
// call multiple times; cleanup failures are logged, not returned.
func (b *Backend) Terminate() {
	b.mu.Lock()
	cmd := b.cmd
	if b.stdin != nil {
		b.stdin.Close()
		b.stdin = nil
	}
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if !b.Running() {
		b.log.Debug("back-end already exited", "pid", cmd.Process.Pid)
		return
	}

	b.log.Debug("terminating back-end", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		b.log.Debug("SIGTERM failed", "error", err)
	}

	grace := b.opts.TerminateGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	select {
	case <-b.waitDone:
		b.log.Debug("back-end exited gracefully")
	case <-time.After(grace):
		b.log.Warn("back-end did not exit in time, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			b.log.Debug("kill failed", "error", err)
		}
		<-b.waitDone
	}
}

// drain copies a back-end output stream into buf until EOF.
func (b *Backend) drain(r io.Reader, buf *bytes.Buffer, name string) {
	data, err := io.ReadAll(r)
	if err != nil {
		b.log.Debug("error draining back-end output", "stream", name, "error", err)
	}
	if len(data) > 0 {
		b.mu.Lock()
		buf.Write(data)
		b.mu.Unlock()
		b.log.Debug("captured back-end output", "stream", name, "bytes", len(data))
	}
}

// monitorExit is the sole caller of cmd.Wait(); it records the exit error
// and closes waitDone for everyone selecting on process exit.
func (b *Backend) monitorExit() {
	err := b.cmd.Wait()

	b.mu.Lock()
	b.waitErr = err
	b.mu.Unlock()

	b.log.Debug("back-end exited", "error", err)
	close(b.waitDone)
}
