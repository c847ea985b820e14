// Package mcp runs an external Model Context Protocol server as a tool
// session. The server is a subprocess speaking JSON-RPC over stdin/stdout;
// the session owns its lifecycle and decodes MCP result shapes into the
// pipeline's types at this boundary: inputSchema payloads become schema
// maps, tools/call content arrays become content items.
//
// Information Hiding:
// - Server process lifecycle
// - MCP method names and result shapes

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/richinex/cerberus/tools"
)

const protocolVersion = "2024-11-05"

// DefaultServerCommand launches the reference sqlite MCP server.
func DefaultServerCommand(dbPath string) (string, []string) {
	return "uvx", []string{"mcp-server-sqlite", "--db-path", dbPath}
}

// Session exposes an MCP server as a tools.Session.
type Session struct {
	conn    *rpcConn
	cleanup func() error
}

// serverTool is the tools/list entry shape.
type serverTool struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []serverTool `json:"tools"`
}

// callResult is the tools/call result shape.
type callResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewSession starts the given MCP server command, performs the protocol
// handshake, and wraps the connection as a session.
func NewSession(ctx context.Context, command string, args ...string) (*Session, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	session := newSession(newRPCConn(stdin, stdout), func() error {
		stdin.Close()
		if cmd.Process != nil {
			_ = cmd.Process.Kill() // Intentionally ignore - cleanup
			_ = cmd.Wait()         // Intentionally ignore - cleanup
		}
		return nil
	})

	if err := session.initialize(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}
	return session, nil
}

// newSession wraps an established connection without process management.
func newSession(conn *rpcConn, cleanup func() error) *Session {
	return &Session{conn: conn, cleanup: cleanup}
}

// initialize performs the MCP handshake.
func (s *Session) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "cerberus",
			"version": "0.1.0",
		},
	}
	_, err := s.conn.Call(ctx, "initialize", params)
	return err
}

// ListTools returns the server's tools with decoded input schemas.
func (s *Session) ListTools(ctx context.Context) ([]tools.ToolInfo, error) {
	raw, err := s.conn.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var listed toolsListResult
	if err := json.Unmarshal(raw, &listed); err != nil {
		return nil, fmt.Errorf("failed to parse tools list: %w", err)
	}

	result := make([]tools.ToolInfo, len(listed.Tools))
	for i, entry := range listed.Tools {
		description := ""
		if entry.Description != nil {
			description = *entry.Description
		}

		var schema map[string]interface{}
		if len(entry.InputSchema) > 0 {
			if err := json.Unmarshal(entry.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid schema for tool %s: %w", entry.Name, err)
			}
		}

		result[i] = tools.ToolInfo{
			Name:        entry.Name,
			Description: description,
			InputSchema: schema,
		}
	}
	return result, nil
}

// CallTool executes a tool and decodes its content array.
func (s *Session) CallTool(ctx context.Context, name string, arguments map[string]interface{}) ([]tools.ContentItem, error) {
	params := map[string]interface{}{
		"name":      name,
		"arguments": arguments,
	}
	raw, err := s.conn.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result callResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}

	items := make([]tools.ContentItem, len(result.Content))
	for i, item := range result.Content {
		items[i] = tools.ContentItem{Type: item.Type, Text: item.Text}
	}

	if result.IsError {
		return nil, fmt.Errorf("tool %s reported an error: %s", name, flattenText(items))
	}
	return items, nil
}

// Close releases the connection and the server process, if any.
func (s *Session) Close() error {
	if s.cleanup != nil {
		return s.cleanup()
	}
	return nil
}

func flattenText(items []tools.ContentItem) string {
	text := ""
	for _, item := range items {
		if item.Type == "text" {
			if text != "" {
				text += "\n"
			}
			text += item.Text
		}
	}
	return text
}

// Verify Session implements tools.Session
var _ tools.Session = (*Session)(nil)
