package debugger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/replaydev/rr-mcp/config"
	"github.com/replaydev/rr-mcp/replay"
)

// loopbackHost is the address LLDB dials to reach rr's gdbserver. It must
// be the literal loopback address: LLDB's gdb-remote rejects "localhost"
// on some platforms.
const loopbackHost = "127.0.0.1"

// errFrontEndExited reports that the lldb process died mid-command.
var errFrontEndExited = errors.New("lldb front-end exited")

// commandQuietWindow bounds how long collected output may go quiet before a
// command counts as complete when lldb suppresses its prompt. It is longer
// than the back-end poll interval on purpose: a command that streams output
// with a mid-stream pause must not have its tail attributed to the next
// command.
const commandQuietWindow = 2 * time.Second

// executionCommands are LLDB commands that resume the debuggee. After one
// of these the stop reason is worth logging.
var executionCommands = []string{
	"c", "continue", "s", "step", "n", "next", "finish", "si", "ni", "stepi", "nexti",
}

// LLDBDriver drives a replay through an LLDB front-end attached to rr's
// gdbserver stub on a loopback port. Commands run synchronously: LLDB
// prints its prompt once a command completes, and output is collected
// until the prompt reappears.
type LLDBDriver struct {
	backend *replay.Backend

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	chunks chan []byte

	// waitDone is closed when the lldb process has been reaped.
	waitDone chan struct{}

	quietWindow time.Duration
	maxOutput   int
	grace       time.Duration
	log         *slog.Logger

	closeOnce sync.Once
}

// StartLLDB launches a server-mode back-end for traceDir and attaches an
// lldb front-end to it. exePath, when known, seeds the target so symbols
// resolve; pass "" to connect without one.
func StartLLDB(traceDir, exePath string, cfg config.Config, log *slog.Logger) (*LLDBDriver, error) {
	backend, err := replay.Start(traceDir, replay.Options{
		Mode:           replay.ModeServer,
		Port:           cfg.RemotePort,
		TerminateGrace: cfg.TerminateGrace.Std(),
	}, log)
	if err != nil {
		return nil, err
	}

	// The gdbserver stub needs a moment to bind its port; a back-end that
	// dies inside the window failed to start.
	if err := backend.CheckStartup(cfg.StartupDelay.Std()); err != nil {
		return nil, err
	}

	d := &LLDBDriver{
		backend:     backend,
		chunks:      make(chan []byte, 64),
		waitDone:    make(chan struct{}),
		quietWindow: commandQuietWindow,
		maxOutput:   cfg.MaxOutputBytes,
		grace:       cfg.TerminateGrace.Std(),
		log:         log,
	}

	if err := d.startFrontEnd(); err != nil {
		backend.Terminate()
		return nil, err
	}

	if exePath != "" {
		if out, err := d.command("target create " + exePath); err != nil {
			log.Warn("target create failed", "exe", exePath, "error", err)
		} else {
			log.Debug("target created", "exe", exePath, "output", out)
		}
	}

	connect := fmt.Sprintf("gdb-remote %s:%d", loopbackHost, cfg.RemotePort)
	out, err := d.command(connect)
	if err != nil {
		d.teardown()
		return nil, fmt.Errorf("failed to connect to rr gdbserver: %w", err)
	}
	if strings.Contains(out, "error:") {
		d.teardown()
		return nil, fmt.Errorf("failed to connect to rr gdbserver: %s", strings.TrimSpace(out))
	}

	log.Info("lldb attached to replay", "port", cfg.RemotePort, "pid", backend.Pid())
	return d, nil
}

// startFrontEnd spawns the lldb process and wires its output streams into
// the chunk channel.
func (d *LLDBDriver) startFrontEnd() error {
	cmd := exec.Command("lldb", "--no-use-colors")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get lldb stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to get lldb stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to get lldb stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("failed to start lldb: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin

	var wg sync.WaitGroup
	wg.Add(2)
	go d.readStream(stdout, &wg)
	go d.readStream(stderr, &wg)
	go func() {
		wg.Wait()
		close(d.chunks)
	}()
	go func() {
		err := cmd.Wait()
		d.log.Debug("lldb exited", "error", err)
		close(d.waitDone)
	}()

	d.log.Info("lldb front-end started", "pid", cmd.Process.Pid)
	return nil
}

// readStream copies one lldb output stream into the chunk channel.
func (d *LLDBDriver) readStream(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			d.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// command writes one line to lldb and collects output until the command
// completes.
func (d *LLDBDriver) command(cmd string) (string, error) {
	if _, err := fmt.Fprintf(d.stdin, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("failed to write to lldb: %w", err)
	}
	return d.collect(d.quietWindow)
}

// collect gathers output chunks until the command completes: the prompt
// reappears or, since lldb omits the prompt when stdout is a pipe, the
// output goes quiet for the given window after something arrived. No output
// keeps waiting — execution commands print nothing until the debuggee
// stops; a dead lldb closes the chunk channel instead.
func (d *LLDBDriver) collect(quiet time.Duration) (string, error) {
	var b strings.Builder
	for {
		select {
		case chunk, ok := <-d.chunks:
			if !ok {
				return b.String(), errFrontEndExited
			}
			b.Write(chunk)
			if promptAtEnd(b.String()) {
				return stripPrompts(b.String()), nil
			}
		case <-time.After(quiet):
			if b.Len() > 0 {
				return stripPrompts(b.String()), nil
			}
		}
	}
}

// promptAtEnd reports whether the collected output ends with the lldb prompt.
func promptAtEnd(s string) bool {
	return strings.HasSuffix(strings.TrimRight(s, " \t\r\n"), "(lldb)")
}

// stripPrompts removes prompt lines and the echoed command from output.
func stripPrompts(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "(lldb)" || strings.HasPrefix(trimmed, "(lldb) ") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Run executes one LLDB command and returns its truncated output.
func (d *LLDBDriver) Run(cmd string) (string, error) {
	d.log.Info("running command", "cmd", cmd)

	out, err := d.command(cmd)
	if err != nil {
		return Truncate(out, d.maxOutput), fmt.Errorf("replay session lost during %q: %w", cmd, err)
	}

	if isExecutionCommand(cmd) {
		if reason := stopReason(out); reason != "" {
			d.log.Info("debuggee stopped", "reason", reason)
		}
	}
	return Truncate(out, d.maxOutput), nil
}

// Pid returns the back-end's process ID.
func (d *LLDBDriver) Pid() int { return d.backend.Pid() }

// isExecutionCommand reports whether cmd resumes the debuggee.
func isExecutionCommand(cmd string) bool {
	word := strings.ToLower(strings.TrimSpace(cmd))
	if i := strings.IndexByte(word, ' '); i >= 0 {
		word = word[:i]
	}
	for _, ec := range executionCommands {
		if word == ec {
			return true
		}
	}
	return false
}

// stopReason extracts the "stop reason = ..." text from lldb output.
func stopReason(out string) string {
	const key = "stop reason = "
	i := strings.Index(out, key)
	if i < 0 {
		return ""
	}
	rest := out[i+len(key):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// Close quits the front-end and terminates the back-end. Safe to call
// multiple times.
func (d *LLDBDriver) Close() {
	d.closeOnce.Do(d.teardown)
}

// teardown asks lldb to quit, force-kills it after the grace period, and
// then brings the back-end down.
func (d *LLDBDriver) teardown() {
	d.log.Info("closing lldb session")

	if d.stdin != nil {
		fmt.Fprintln(d.stdin, "quit")
		d.stdin.Close()
	}

	if d.cmd != nil && d.cmd.Process != nil {
		select {
		case <-d.waitDone:
			d.log.Debug("lldb exited gracefully")
		case <-time.After(d.grace):
			d.log.Warn("lldb did not exit, killing", "pid", d.cmd.Process.Pid)
			d.cmd.Process.Kill()
			<-d.waitDone
		}
	}

	d.backend.Terminate()
}
