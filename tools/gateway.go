// Tool Invocation Gateway - bridges model-issued tool calls to a Session.
//
// Information Hiding:
// - Argument JSON validation
// - Content item flattening (text vs opaque media)
// - ToolInfo to ToolDefinition conversion

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/cerberus/llm"
)

// ImageMarker replaces opaque media items in flattened tool output.
const ImageMarker = "[Image]"

// Gateway validates and dispatches model-issued tool calls against a Session.
type Gateway struct {
	session Session
}

// NewGateway creates a gateway over the given session.
func NewGateway(session Session) *Gateway {
	return &Gateway{session: session}
}

// Session returns the underlying session.
func (g *Gateway) Session() Session {
	return g.session
}

// Definitions lists the session's tools as model-facing tool definitions.
func (g *Gateway) Definitions(ctx context.Context) ([]llm.ToolDefinition, error) {
	infos, err := g.session.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	defs := make([]llm.ToolDefinition, len(infos))
	for i, info := range infos {
		params := info.InputSchema
		if params == nil {
			params = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		defs[i] = llm.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  params,
		}
	}
	return defs, nil
}

// Invoke executes one tool call. Malformed argument JSON is a local error;
// it never reaches the session. Successful results are flattened to a single
// string: text items verbatim, anything else as the image marker, joined by
// newlines in arrival order.
func (g *Gateway) Invoke(ctx context.Context, name, argumentsJSON string) (string, error) {
	arguments := map[string]interface{}{}
	if strings.TrimSpace(argumentsJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &arguments); err != nil {
			return "", fmt.Errorf("invalid arguments for tool %s: %w", name, err)
		}
	}

	items, err := g.session.CallTool(ctx, name, arguments)
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type == "text" {
			parts = append(parts, item.Text)
		} else {
			parts = append(parts, ImageMarker)
		}
	}
	return strings.Join(parts, "\n"), nil
}
