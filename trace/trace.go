// Package trace inspects rr trace directories.
//
// The main job is recovering the path of the recorded executable, which a
// debugger front-end needs before it can attach to the replay. rr does not
// expose this through a stable interface, so resolution tries three
// strategies in order: `rr ps` output, the `exe` symlink some rr versions
// leave in the trace directory, and a raw scan of the mmaps file for
// executable-looking paths.
package trace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/replaydev/rr-mcp/exec"
)

// rrPsTimeout bounds the `rr ps` invocation so a wedged rr cannot stall
// session startup.
const rrPsTimeout = 5 * time.Second

// mmapScanBytes is how much of the mmap file gets scanned for paths.
// The executable's own mapping is recorded first, so the head is enough.
const mmapScanBytes = 4096

// Resolver recovers metadata from rr trace directories.
type Resolver struct {
	executor exec.CommandExecutor
	log      *slog.Logger
}

// NewResolver creates a Resolver using the given executor.
func NewResolver(executor exec.CommandExecutor, log *slog.Logger) *Resolver {
	return &Resolver{executor: executor, log: log}
}

// Validate checks that dir exists and looks like an rr trace directory.
func Validate(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("trace directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("trace path %s is not a directory", dir)
	}
	return nil
}

// ResolveExe returns the path of the executable recorded in the trace.
// Returns an error only when every strategy fails; callers typically log
// and carry on with an unknown executable.
func (r *Resolver) ResolveExe(ctx context.Context, traceDir string) (string, error) {
	if exe, err := r.fromRRPS(ctx, traceDir); err == nil {
		r.log.Debug("resolved exe via rr ps", "exe", exe)
		return exe, nil
	} else {
		r.log.Debug("rr ps resolution failed", "error", err)
	}

	if exe, err := fromExeSymlink(traceDir); err == nil {
		r.log.Debug("resolved exe via exe symlink", "exe", exe)
		return exe, nil
	} else {
		r.log.Debug("exe symlink resolution failed", "error", err)
	}

	if exe, err := fromMmapScan(traceDir); err == nil {
		r.log.Debug("resolved exe via mmap scan", "exe", exe)
		return exe, nil
	} else {
		r.log.Debug("mmap scan resolution failed", "error", err)
	}

	return "", fmt.Errorf("could not determine executable for trace %s", traceDir)
}

// fromRRPS parses `rr ps <dir>` output. The first line is a header
// (PID PPID EXIT CMD); the first process line's CMD column holds the
// command, whose leading token is the executable path.
func (r *Resolver) fromRRPS(ctx context.Context, traceDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, rrPsTimeout)
	defer cancel()

	output, err := r.executor.Output(ctx, "", "rr", "ps", traceDir)
	if err != nil {
		return "", fmt.Errorf("rr ps failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) < 2 {
		return "", fmt.Errorf("rr ps output has no process lines")
	}

	// Skip the header; the first process line describes the root process.
	fields := strings.Fields(lines[1])
	if len(fields) < 4 {
		return "", fmt.Errorf("unexpected rr ps line: %q", lines[1])
	}
	exe := fields[3]

	if info, err := os.Stat(exe); err != nil || info.IsDir() {
		return "", fmt.Errorf("rr ps path %s is not a file", exe)
	}
	return exe, nil
}

// fromExeSymlink follows the `exe` symlink in the trace directory.
func fromExeSymlink(traceDir string) (string, error) {
	link := filepath.Join(traceDir, "exe")
	target, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(traceDir, target)
	}
	if info, err := os.Stat(target); err != nil || info.IsDir() {
		return "", fmt.Errorf("exe symlink target %s is not a file", target)
	}
	return target, nil
}

// fromMmapScan scans the head of the trace's mmap file for absolute paths
// and picks the first one that looks like the main executable (not a
// shared library or system path).
func fromMmapScan(traceDir string) (string, error) {
	f, err := os.Open(filepath.Join(traceDir, "mmap"))
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, mmapScanBytes)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return "", err
	}

	for _, candidate := range extractPaths(buf[:n]) {
		if !looksLikeExecutable(candidate) {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no executable path found in mmap file")
}

// extractPaths pulls the NUL-terminated strings beginning with '/' out of
// raw binary data.
func extractPaths(data []byte) []string {
	var paths []string
	for i := 0; i < len(data); i++ {
		if data[i] != '/' {
			continue
		}
		end := i
		for end < len(data) && data[end] != 0 {
			end++
		}
		if end > i+1 {
			paths = append(paths, string(data[i:end]))
		}
		i = end
	}
	return paths
}

// looksLikeExecutable filters out shared libraries and system paths.
func looksLikeExecutable(path string) bool {
	if strings.HasPrefix(path, "/lib/") || strings.HasPrefix(path, "/usr/lib/") {
		return false
	}
	if strings.Contains(path, ".so") {
		return false
	}
	return true
}
