// Package tools provides the tool capability surface for the recommendation
// pipeline: a Session abstraction over tool providers and a Gateway that
// adapts sessions to the model's tool-calling contract.
//
// Information Hiding:
// - Tool execution details hidden behind the Session interface
// - Row/content decoding internalized per session implementation
// - Argument validation centralized in the Gateway
package tools

import (
	"context"
)

// ToolInfo describes one tool a session exposes. InputSchema is a JSON
// Schema object (type/properties/required).
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ContentItem is one element of a tool result. Text items carry their
// payload verbatim; any other type is opaque to the pipeline.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Session is a connection to a tool provider for the duration of one run.
//
// Implementations decode provider-specific result shapes into ContentItems
// at this boundary so nothing downstream branches on shape.
type Session interface {
	// ListTools returns the tools available on this session.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool executes a tool with decoded arguments and returns its
	// result content items in order.
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) ([]ContentItem, error)

	// Close releases the session's resources.
	Close() error
}

// TextContent builds a single-item text result.
func TextContent(text string) []ContentItem {
	return []ContentItem{{Type: "text", Text: text}}
}
