package debugger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replaydev/rr-mcp/config"
	rexec "github.com/replaydev/rr-mcp/exec"
	"github.com/replaydev/rr-mcp/logger"
	"github.com/replaydev/rr-mcp/trace"
)

// ErrNoSession is returned when a command arrives before any replay
// session has been started.
var ErrNoSession = errors.New("no replay session started")

// Driver executes debugger commands against one replay back-end.
type Driver interface {
	// Run executes one command and blocks until it settles.
	Run(cmd string) (string, error)

	// Pid returns the back-end's process ID.
	Pid() int

	// Close tears the session down. Must be idempotent.
	Close()
}

var _ Driver = (*MIDriver)(nil)
var _ Driver = (*LLDBDriver)(nil)

// DriverFactory creates a driver for a trace. Injected so tests can
// substitute a fake without spawning rr.
type DriverFactory func(traceDir, exePath string, cfg config.Config, log *slog.Logger) (Driver, error)

// defaultFactory picks the driver by configured mode.
func defaultFactory(traceDir, exePath string, cfg config.Config, log *slog.Logger) (Driver, error) {
	if cfg.Mode == config.ModeLLDB {
		return StartLLDB(traceDir, exePath, cfg, log)
	}
	return StartMI(traceDir, cfg, log)
}

// Session is one active replay of one trace directory.
type Session struct {
	ID        string
	TraceDir  string
	ExePath   string
	CreatedAt time.Time

	driver Driver
}

// Controller owns at most one replay session at a time. Starting a new
// session replaces the previous one; commands are serialized.
type Controller struct {
	cfg      config.Config
	resolver *trace.Resolver
	factory  DriverFactory
	log      *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewController creates a Controller with the production driver factory
// and executable resolver.
func NewController(cfg config.Config) *Controller {
	log := logger.WithComponent("debugger")
	return &Controller{
		cfg:      cfg,
		resolver: trace.NewResolver(rexec.NewRealExecutor(), log),
		factory:  defaultFactory,
		log:      log,
	}
}

// NewControllerWith creates a Controller with an injected resolver and
// driver factory. Intended for tests.
func NewControllerWith(cfg config.Config, resolver *trace.Resolver, factory DriverFactory, log *slog.Logger) *Controller {
	return &Controller{cfg: cfg, resolver: resolver, factory: factory, log: log}
}

// StartSession replays the trace in traceDir, replacing any previous
// session. The previous session is closed best-effort first so its
// back-end cannot linger.
func (c *Controller) StartSession(ctx context.Context, traceDir string) (*Session, error) {
	if err := trace.Validate(traceDir); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.log.Info("closing previous replay session", "sessionID", c.current.ID)
		c.current.driver.Close()
		c.current = nil
	}

	exePath, err := c.resolver.ResolveExe(ctx, traceDir)
	if err != nil {
		c.log.Warn("could not resolve trace executable", "error", err)
		exePath = ""
	}

	driver, err := c.factory(traceDir, exePath, c.cfg, c.log)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        uuid.NewString(),
		TraceDir:  traceDir,
		ExePath:   exePath,
		CreatedAt: time.Now(),
		driver:    driver,
	}
	c.current = session

	logger.WithSession(session.ID).Info("replay session started",
		"traceDir", traceDir, "exe", exePath, "pid", driver.Pid())
	return session, nil
}

// Run executes one debugger command against the current session. Commands
// are serialized: the session cannot be replaced while one is running.
func (c *Controller) Run(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return "", ErrNoSession
	}
	return c.current.driver.Run(cmd)
}

// Current returns the active session, or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Pid returns the current session's back-end PID, or 0.
func (c *Controller) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.current.driver.Pid()
}

// Close ends the current session, if any. Safe to call multiple times.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return
	}
	c.log.Info("closing replay session", "sessionID", c.current.ID)
	c.current.driver.Close()
	c.current = nil
}
