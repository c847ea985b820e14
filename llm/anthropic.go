// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Streaming via official SDK

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:      client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request.
// The Messages API has no response_format parameter; when a JSON object is
// requested the constraint must already be stated in the prompt.
func (p *AnthropicProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, _ *ResponseFormat) (LLMResponse, error) {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(p.temperature),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	return LLMResponse{Content: content, Usage: usage}, nil
}

// StreamChatWithTools opens a streaming chat completion with tool definitions.
// Tool use arrives as a content_block_start carrying id/name followed by
// input_json_delta fragments for the same block index.
func (p *AnthropicProvider) StreamChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (ChatStream, error) {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(p.temperature),
		Tools:       convertToAnthropicTools(tools),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	return &anthropicStream{stream: stream}, nil
}

// anthropicStream adapts the SDK event stream to the ChatStream interface.
type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// Recv returns the next chunk, translating SDK events. Events that carry
// nothing of interest yield an empty chunk rather than blocking for the next
// one; the consumer treats empty chunks as no-ops.
func (s *anthropicStream) Recv() (StreamChunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return StreamChunk{}, fmt.Errorf("stream error: %w", err)
		}
		return StreamChunk{}, io.EOF
	}

	event := s.stream.Current()
	var chunk StreamChunk

	switch eventVariant := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		if eventVariant.Message.Usage.InputTokens > 0 {
			chunk.Usage = &TokenUsage{
				PromptTokens: int(eventVariant.Message.Usage.InputTokens),
			}
		}
	case anthropic.ContentBlockStartEvent:
		switch blockVariant := eventVariant.ContentBlock.AsAny().(type) {
		case anthropic.ToolUseBlock:
			chunk.ToolCalls = append(chunk.ToolCalls, ToolCallChunk{
				Index: int(eventVariant.Index),
				ID:    blockVariant.ID,
				Name:  blockVariant.Name,
			})
		}
	case anthropic.ContentBlockDeltaEvent:
		switch deltaVariant := eventVariant.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			chunk.Content = deltaVariant.Text
		case anthropic.InputJSONDelta:
			chunk.ToolCalls = append(chunk.ToolCalls, ToolCallChunk{
				Index:     int(eventVariant.Index),
				Arguments: deltaVariant.PartialJSON,
			})
		}
	case anthropic.MessageDeltaEvent:
		if eventVariant.Usage.OutputTokens > 0 {
			chunk.Usage = &TokenUsage{
				CompletionTokens: int(eventVariant.Usage.OutputTokens),
				TotalTokens:      int(eventVariant.Usage.OutputTokens),
			}
		}
	}

	return chunk, nil
}

// Close terminates the event stream.
func (s *anthropicStream) Close() error {
	return s.stream.Close()
}

// convertToAnthropicMessages converts ChatMessage values to Anthropic format.
// The system message is extracted and returned separately; assistant tool
// calls become tool_use blocks and tool results become tool_result blocks.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				content := &anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
				}
				if msg.Content != "" {
					content.Content = append(content.Content, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input map[string]interface{}
					_ = json.Unmarshal([]byte(tc.Arguments), &input)
					content.Content = append(content.Content, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    tc.ID,
							Name:  tc.Name,
							Input: input,
						},
					})
				}
				anthropicMessages = append(anthropicMessages, *content)
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		case "tool":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	return anthropicMessages, systemPrompt
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
func convertToAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		required, _ := t.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
