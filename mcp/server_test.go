package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaydev/rr-mcp/debugger"
	"github.com/replaydev/rr-mcp/logger"
)

func TestMain(m *testing.M) {
	// Send logging to /dev/null so tests don't write into the state dir
	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}

// fakeDebugger scripts the controller surface the server depends on.
type fakeDebugger struct {
	startErr error
	runOut   string
	runErr   error

	startedDirs []string
	ranCommands []string
}

func (d *fakeDebugger) StartSession(_ context.Context, traceDir string) (*debugger.Session, error) {
	d.startedDirs = append(d.startedDirs, traceDir)
	if d.startErr != nil {
		return nil, d.startErr
	}
	return &debugger.Session{
		ID:        "test-session",
		TraceDir:  traceDir,
		ExePath:   "/home/user/crash",
		CreatedAt: time.Now(),
	}, nil
}

func (d *fakeDebugger) Run(cmd string) (string, error) {
	d.ranCommands = append(d.ranCommands, cmd)
	return d.runOut, d.runErr
}

// runServer feeds newline-delimited requests through a server and returns
// the decoded responses.
func runServer(t *testing.T, dbg Debugger, requests ...string) []JSONRPCResponse {
	t.Helper()

	input := strings.Join(requests, "\n") + "\n"
	var out strings.Builder
	s := NewServer(strings.NewReader(input), &out, dbg)
	require.NoError(t, s.Run())

	var responses []JSONRPCResponse
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp JSONRPCResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

// toolPayload re-decodes a tool call response's text content into dst.
func toolPayload(t *testing.T, resp JSONRPCResponse, dst any) ToolCallResult {
	t.Helper()

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotEmpty(t, result.Content)
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), dst))
	return result
}

func TestInitialize(t *testing.T) {
	responses := runServer(t, &fakeDebugger{},
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"initialized"}`,
	)

	require.Len(t, responses, 1, "notifications get no response")

	raw, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(raw, &result))

	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, ServerName, result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestToolsList(t *testing.T) {
	responses := runServer(t, &fakeDebugger{},
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	)
	require.Len(t, responses, 1)

	raw, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var result ToolsListResult
	require.NoError(t, json.Unmarshal(raw, &result))

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"rr_replay", "run_cmd", "read_file"}, names)
}

func TestUnknownMethod(t *testing.T) {
	responses := runServer(t, &fakeDebugger{},
		`{"jsonrpc":"2.0","id":7,"method":"resources/list"}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, -32601, responses[0].Error.Code)
}

func TestParseError(t *testing.T) {
	responses := runServer(t, &fakeDebugger{}, `this is not json`)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, -32700, responses[0].Error.Code)
}

func TestReplayTool(t *testing.T) {
	dbg := &fakeDebugger{}
	responses := runServer(t, dbg,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"rr_replay","arguments":{"rr_trace_dir":"/traces/t1"}}}`,
	)
	require.Len(t, responses, 1)

	var payload ReplayResult
	result := toolPayload(t, responses[0], &payload)

	assert.False(t, result.IsError)
	assert.True(t, payload.Success)
	assert.Contains(t, payload.Message, "/traces/t1")
	assert.Contains(t, payload.Message, "/home/user/crash")
	assert.Equal(t, []string{"/traces/t1"}, dbg.startedDirs)
}

func TestReplayToolStartFailure(t *testing.T) {
	dbg := &fakeDebugger{startErr: fmt.Errorf("rr replay exited during startup")}
	responses := runServer(t, dbg,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"rr_replay","arguments":{"rr_trace_dir":"/traces/bad"}}}`,
	)
	require.Len(t, responses, 1)

	var payload ReplayResult
	result := toolPayload(t, responses[0], &payload)

	assert.True(t, result.IsError)
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Message, "rr replay exited during startup")
}

func TestRunCmdTool(t *testing.T) {
	dbg := &fakeDebugger{runOut: "#0  main () at crash.c:12"}
	responses := runServer(t, dbg,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"run_cmd","arguments":{"cmd":"bt"}}}`,
	)
	require.Len(t, responses, 1)

	var payload CommandResult
	result := toolPayload(t, responses[0], &payload)

	assert.False(t, result.IsError)
	assert.True(t, payload.Success)
	assert.Equal(t, "#0  main () at crash.c:12", payload.Output)
	assert.Equal(t, []string{"bt"}, dbg.ranCommands)
}

func TestRunCmdToolWithoutSession(t *testing.T) {
	dbg := &fakeDebugger{runErr: debugger.ErrNoSession}
	responses := runServer(t, dbg,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"run_cmd","arguments":{"cmd":"bt"}}}`,
	)
	require.Len(t, responses, 1)

	var payload CommandResult
	result := toolPayload(t, responses[0], &payload)

	assert.True(t, result.IsError)
	assert.False(t, payload.Success)
	assert.Equal(t, "No replay session started", payload.Error)
}

func TestRunCmdToolEmptyCommand(t *testing.T) {
	responses := runServer(t, &fakeDebugger{},
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"run_cmd","arguments":{"cmd":"  "}}}`,
	)
	require.Len(t, responses, 1)

	var payload CommandResult
	toolPayload(t, responses[0], &payload)
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Error, "must not be empty")
}

func TestReadFileTool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.c")
	require.NoError(t, os.WriteFile(path, []byte("int main() {\n  return 0;\n}\n"), 0644))

	req := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"read_file","arguments":{"path":%q,"start_line":1,"end_line":2}}}`, path)
	responses := runServer(t, &fakeDebugger{}, req)
	require.Len(t, responses, 1)

	var payload ReadFileResult
	result := toolPayload(t, responses[0], &payload)

	assert.False(t, result.IsError)
	assert.True(t, payload.Success)
	assert.Equal(t, "int main() {\n  return 0;\n", payload.Content)
}

func TestReadFileToolBadRange(t *testing.T) {
	responses := runServer(t, &fakeDebugger{},
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"read_file","arguments":{"path":"/tmp/x.c","start_line":5,"end_line":2}}}`,
	)
	require.Len(t, responses, 1)

	var payload ReadFileResult
	toolPayload(t, responses[0], &payload)
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Error, "greater than end_line")
}

func TestUnknownTool(t *testing.T) {
	responses := runServer(t, &fakeDebugger{},
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"launch_missiles","arguments":{}}}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, -32602, responses[0].Error.Code)
}
