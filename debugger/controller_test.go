package debugger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaydev/rr-mcp/config"
	rexec "github.com/replaydev/rr-mcp/exec"
	"github.com/replaydev/rr-mcp/trace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDriver records commands and close calls.
type fakeDriver struct {
	output     string
	runErr     error
	commands   []string
	closeCalls int
}

func (d *fakeDriver) Run(cmd string) (string, error) {
	d.commands = append(d.commands, cmd)
	return d.output, d.runErr
}

func (d *fakeDriver) Pid() int { return 4242 }
func (d *fakeDriver) Close()   { d.closeCalls++ }

// newTestController wires a controller whose factory hands out the given
// drivers in order.
func newTestController(t *testing.T, drivers ...*fakeDriver) *Controller {
	t.Helper()

	mock := rexec.NewMockExecutor()
	mock.AddPrefixMatch("rr", []string{"ps"}, rexec.MockResponse{
		Err: fmt.Errorf("rr not installed"),
	})
	resolver := trace.NewResolver(mock, testLogger())

	i := 0
	factory := func(traceDir, exePath string, cfg config.Config, log *slog.Logger) (Driver, error) {
		require.Less(t, i, len(drivers), "factory called more times than drivers provided")
		d := drivers[i]
		i++
		return d, nil
	}

	return NewControllerWith(config.Default(), resolver, factory, testLogger())
}

func TestRunWithoutSession(t *testing.T) {
	c := newTestController(t)

	_, err := c.Run("bt")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStartSessionAndRun(t *testing.T) {
	driver := &fakeDriver{output: "#0 main () at main.c:4"}
	c := newTestController(t, driver)

	dir := t.TempDir()
	session, err := c.StartSession(context.Background(), dir)
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, dir, session.TraceDir)
	assert.False(t, session.CreatedAt.IsZero())

	out, err := c.Run("bt")
	require.NoError(t, err)
	assert.Equal(t, "#0 main () at main.c:4", out)
	assert.Equal(t, []string{"bt"}, driver.commands)
}

func TestStartSessionRejectsMissingDir(t *testing.T) {
	c := newTestController(t)

	_, err := c.StartSession(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.Nil(t, c.Current())
}

func TestStartSessionReplacesPrevious(t *testing.T) {
	first := &fakeDriver{}
	second := &fakeDriver{}
	c := newTestController(t, first, second)

	s1, err := c.StartSession(context.Background(), t.TempDir())
	require.NoError(t, err)

	s2, err := c.StartSession(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 1, first.closeCalls, "previous session must be closed on replacement")
	assert.Zero(t, second.closeCalls)
	assert.Equal(t, s2.ID, c.Current().ID)
}

func TestFactoryFailureLeavesNoSession(t *testing.T) {
	mock := rexec.NewMockExecutor()
	resolver := trace.NewResolver(mock, testLogger())
	factory := func(traceDir, exePath string, cfg config.Config, log *slog.Logger) (Driver, error) {
		return nil, fmt.Errorf("rr exploded")
	}
	c := NewControllerWith(config.Default(), resolver, factory, testLogger())

	_, err := c.StartSession(context.Background(), t.TempDir())
	assert.Error(t, err)
	assert.Nil(t, c.Current())

	_, err = c.Run("bt")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCloseIsIdempotent(t *testing.T) {
	driver := &fakeDriver{}
	c := newTestController(t, driver)

	_, err := c.StartSession(context.Background(), t.TempDir())
	require.NoError(t, err)

	c.Close()
	c.Close()

	assert.Equal(t, 1, driver.closeCalls)
	assert.Nil(t, c.Current())

	_, err = c.Run("bt")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestPid(t *testing.T) {
	driver := &fakeDriver{}
	c := newTestController(t, driver)

	assert.Zero(t, c.Pid())

	_, err := c.StartSession(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 4242, c.Pid())
}
