package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/replaydev/rr-mcp/debugger"
	"github.com/replaydev/rr-mcp/logger"
	"github.com/replaydev/rr-mcp/paths"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "rr-mcp-server"
	ServerVersion   = "1.0.0"
)

const serverInstructions = `This server exposes Mozilla's rr (record and replay) debugger to a
tool-calling agent. Use rr_replay to start (or replace) a replay session for
a recorded trace directory, run_cmd to execute debugger commands inside the
session (breakpoints, stepping, reverse execution, stack and variable
inspection), and read_file to look at source files referenced by the trace.`

// Debugger is the slice of the session controller the server needs.
type Debugger interface {
	StartSession(ctx context.Context, traceDir string) (*debugger.Session, error)
	Run(cmd string) (string, error)
}

// Server implements an MCP server exposing rr replay tools over JSON-RPC
// 2.0 on a stdio pair.
type Server struct {
	reader *bufio.Reader
	writer io.Writer
	dbg    Debugger

	mu  sync.Mutex // guards writer
	log *slog.Logger
}

// NewServer creates a new MCP server reading requests from r and writing
// responses to w.
func NewServer(r io.Reader, w io.Writer, dbg Debugger) *Server {
	return &Server{
		reader: bufio.NewReader(r),
		writer: w,
		dbg:    dbg,
		log:    logger.WithComponent("mcp"),
	}
}

// Run starts the MCP server loop. It returns nil on EOF (host closed the
// stream) and an error on any other read failure.
func (s *Server) Run() error {
	s.log.Info("server starting")

	for {
		line, err := s.reader.ReadString('\n')
		if err == io.EOF {
			s.log.Info("EOF received, shutting down")
			return nil
		}
		if err != nil {
			s.log.Error("read error", "error", err)
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.log.Debug("received message", "line", line)

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.log.Error("JSON parse error", "error", err)
			s.sendError(nil, -32700, "Parse error", nil)
			continue
		}

		s.handleRequest(&req)
	}
}

func (s *Server) handleRequest(req *JSONRPCRequest) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notification, no response needed
		s.log.Debug("initialized notification received")
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(req)
	default:
		s.log.Warn("unknown method", "method", req.Method)
		s.sendError(req.ID, -32601, "Method not found", nil)
	}
}

func (s *Server) handleInitialize(req *JSONRPCRequest) {
	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: Capability{
			Tools: &ToolCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
		Instructions: serverInstructions,
	}

	s.sendResult(req.ID, result)
}

func (s *Server) handleToolsList(req *JSONRPCRequest) {
	tools := []ToolDefinition{
		{
			Name: "rr_replay",
			Description: "Replay an rr trace from a directory, starting a debugger session. " +
				"Replaces any previous replay session. Omit rr_trace_dir to replay the latest trace.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"rr_trace_dir": {
						Type:        "string",
						Description: "The directory containing the rr trace. Defaults to rr's latest-trace.",
					},
				},
			},
		},
		{
			Name: "run_cmd",
			Description: "Run a debugger command in the current replay session and return its output. " +
				"Supports gdb/rr commands including reverse execution (reverse-continue, reverse-step).",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"cmd": {
						Type:        "string",
						Description: "The debugger command to run.",
					},
				},
				Required: []string{"cmd"},
			},
		},
		{
			Name: "read_file",
			Description: "Read a range of lines from a source file. Line numbers are 1-indexed " +
				"and inclusive; end_line is clamped to the file length.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"path": {
						Type:        "string",
						Description: "Path of the file to read.",
					},
					"start_line": {
						Type:        "number",
						Description: "First line to read (1-indexed).",
					},
					"end_line": {
						Type:        "number",
						Description: "Last line to read (inclusive).",
					},
				},
				Required: []string{"path", "start_line", "end_line"},
			},
		},
	}

	s.sendResult(req.ID, ToolsListResult{Tools: tools})
}

func (s *Server) handleToolsCall(req *JSONRPCRequest) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.log.Error("failed to parse tool call params", "error", err)
		s.sendError(req.ID, -32602, "Invalid params", nil)
		return
	}

	switch params.Name {
	case "rr_replay":
		s.handleReplay(req, params)
	case "run_cmd":
		s.handleRunCmd(req, params)
	case "read_file":
		s.handleReadFile(req, params)
	default:
		s.log.Warn("unknown tool", "tool", params.Name)
		s.sendError(req.ID, -32602, "Unknown tool", nil)
	}
}

func (s *Server) handleReplay(req *JSONRPCRequest, params ToolCallParams) {
	traceDir, _ := params.Arguments["rr_trace_dir"].(string)
	if traceDir == "" {
		var err error
		traceDir, err = paths.DefaultTraceDir()
		if err != nil {
			s.sendPayload(req.ID, true, ReplayResult{
				Success: false,
				Message: fmt.Sprintf("no trace directory given and default could not be resolved: %v", err),
			})
			return
		}
		s.log.Debug("no trace dir given, using default", "traceDir", traceDir)
	}

	s.log.Info("replaying trace", "traceDir", traceDir)

	session, err := s.dbg.StartSession(context.Background(), traceDir)
	if err != nil {
		s.sendPayload(req.ID, true, ReplayResult{
			Success: false,
			Message: fmt.Sprintf("failed to start replay session: %v", err),
		})
		return
	}

	msg := fmt.Sprintf("replay session started for %s", session.TraceDir)
	if session.ExePath != "" {
		msg += fmt.Sprintf(" (executable: %s)", session.ExePath)
	}
	s.sendPayload(req.ID, false, ReplayResult{Success: true, Message: msg})
}

func (s *Server) handleRunCmd(req *JSONRPCRequest, params ToolCallParams) {
	cmd, _ := params.Arguments["cmd"].(string)
	if strings.TrimSpace(cmd) == "" {
		s.sendPayload(req.ID, true, CommandResult{
			Success: false,
			Error:   "cmd must not be empty",
		})
		return
	}

	output, err := s.dbg.Run(cmd)
	if err != nil {
		result := CommandResult{Success: false, Output: output, Error: err.Error()}
		if errors.Is(err, debugger.ErrNoSession) {
			result.Error = "No replay session started"
		}
		s.sendPayload(req.ID, true, result)
		return
	}

	s.sendPayload(req.ID, false, CommandResult{Success: true, Output: output})
}

func (s *Server) handleReadFile(req *JSONRPCRequest, params ToolCallParams) {
	path, _ := params.Arguments["path"].(string)
	start, startOK := numberArg(params.Arguments, "start_line")
	end, endOK := numberArg(params.Arguments, "end_line")

	if path == "" || !startOK || !endOK {
		s.sendPayload(req.ID, true, ReadFileResult{
			Success: false,
			Error:   "path, start_line and end_line are required",
		})
		return
	}

	content, err := ReadFileRange(path, start, end)
	if err != nil {
		s.sendPayload(req.ID, true, ReadFileResult{Success: false, Error: err.Error()})
		return
	}
	s.sendPayload(req.ID, false, ReadFileResult{Success: true, Content: content})
}

// numberArg reads a JSON number argument as an int.
func numberArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// sendPayload JSON-encodes a tool payload into the result's text content.
func (s *Server) sendPayload(id any, isError bool, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to marshal tool payload", "error", err)
		s.sendToolResult(id, true, `{"success":false,"error":"internal error: failed to marshal result"}`)
		return
	}
	s.sendToolResult(id, isError, string(data))
}

func (s *Server) sendToolResult(id any, isError bool, text string) {
	toolResult := ToolCallResult{
		Content: []ContentItem{
			{
				Type: "text",
				Text: text,
			},
		},
		IsError: isError,
	}

	s.sendResult(id, toolResult)
}

func (s *Server) sendResult(id any, result any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}

	s.send(resp)
}

func (s *Server) sendError(id any, code int, message string, data any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	s.send(resp)
}

func (s *Server) send(resp JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to marshal response", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.writer, "%s\n", data); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}
