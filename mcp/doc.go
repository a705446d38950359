// Package mcp implements the Model Context Protocol server exposing rr
// replay sessions as agent tools.
//
// # Overview
//
// The server speaks JSON-RPC 2.0 over a stdio pair, one message per line.
// It handles the MCP handshake (initialize / initialized) and exposes
// three tools:
//
//   - rr_replay: start a replay session for a trace directory, replacing
//     any previous session
//   - run_cmd: run one debugger command in the current session and return
//     its settled output
//   - read_file: read a line range from a source file
//
// Tool payloads are JSON-encoded into the result's text content with a
// success flag and structured error field, so a failure inside a tool is
// reported to the agent as data rather than as a protocol error.
//
// # Flow
//
//	agent host
//	    ↓ (JSON-RPC over stdio)
//	Server.Run()
//	    ↓ (tools/call rr_replay, run_cmd)
//	debugger.Controller
//	    ↓
//	rr replay back-end
//
// Because stdout carries the protocol stream, nothing in this process may
// print to stdout; logging goes to a file via the logger package.
package mcp
