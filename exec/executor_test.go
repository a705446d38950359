package exec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockExecutorUnmatchedCommandSucceeds(t *testing.T) {
	mock := NewMockExecutor()

	stdout, stderr, err := mock.Run(context.Background(), "", "anything", "at", "all")
	assert.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}

func TestMockExecutorPrefixMatch(t *testing.T) {
	mock := NewMockExecutor()
	mock.AddPrefixMatch("rr", []string{"ps"}, MockResponse{
		Stdout: []byte("PID\tPPID\tEXIT\tCMD\n"),
	})
	mock.AddPrefixMatch("rr", []string{"replay"}, MockResponse{
		Err: errors.New("boom"),
	})

	out, err := mock.Output(context.Background(), "", "rr", "ps", "/tmp/trace")
	require.NoError(t, err)
	assert.Contains(t, string(out), "PID")

	_, err = mock.Output(context.Background(), "", "rr", "replay", "/tmp/trace")
	assert.EqualError(t, err, "boom")
}

func TestMockExecutorRulesMatchInOrder(t *testing.T) {
	mock := NewMockExecutor()
	mock.AddPrefixMatch("kill", nil, MockResponse{Stdout: []byte("first")})
	mock.AddPrefixMatch("kill", []string{"-9"}, MockResponse{Stdout: []byte("second")})

	out, err := mock.Output(context.Background(), "", "kill", "-9", "42")
	require.NoError(t, err)
	assert.Equal(t, "first", string(out), "earlier rules win")
}

func TestMockExecutorRecordsCalls(t *testing.T) {
	mock := NewMockExecutor()

	mock.Run(context.Background(), "/work", "pgrep", "-f", "rr replay")
	mock.CombinedOutput(context.Background(), "", "ps", "-p", "1")

	calls := mock.GetCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "pgrep", calls[0].Name)
	assert.Equal(t, "/work", calls[0].Dir)
	assert.Equal(t, []string{"-f", "rr replay"}, calls[0].Args)
	assert.Equal(t, "ps", calls[1].Name)
}

func TestMockExecutorCombinedOutput(t *testing.T) {
	mock := NewMockExecutor()
	mock.AddPrefixMatch("tool", nil, MockResponse{
		Stdout: []byte("out"),
		Stderr: []byte("err"),
	})

	out, err := mock.CombinedOutput(context.Background(), "", "tool")
	require.NoError(t, err)
	assert.Equal(t, "outerr", string(out))
}

func TestRealExecutorRun(t *testing.T) {
	real := NewRealExecutor()

	stdout, _, err := real.Run(context.Background(), "", "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(stdout))
}
