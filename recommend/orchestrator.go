// Conversation Orchestrator - drives the streaming model/tool loop.
//
// Each round streams one model reply while assembling content and tool
// calls. Rounds that request tools get every call executed sequentially in
// index order, each producing exactly one tool turn; the loop then continues.
// A round without tool calls is terminal and its content is parsed as the
// final payload. Only transport faults that survive the retry budget abort
// a run; tool failures are folded into the conversation as error turns.

package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	ijson "github.com/richinex/cerberus/internal/json"
	"github.com/richinex/cerberus/llm"
	"github.com/richinex/cerberus/metrics"
	"github.com/richinex/cerberus/retry"
	"github.com/richinex/cerberus/tools"
)

// ErrRoundBudget is returned when the model keeps requesting tools past the
// configured round budget.
var ErrRoundBudget = errors.New("model/tool round budget exhausted")

// DefaultMaxRounds bounds the model/tool loop per run.
const DefaultMaxRounds = 16

// ToolCallRecord is one entry of the run's tool-call log.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Result is the outcome of one orchestrated run.
type Result struct {
	// Content is the parsed final payload. When the final content is not
	// valid JSON it degrades to {"raw_response": …, "error": …}.
	Content json.RawMessage
	// RawContent is the final model content verbatim.
	RawContent string
	Metrics    metrics.Performance
	ToolCalls  []ToolCallRecord
	Retries    int
}

// Orchestrator runs the streaming conversation loop against one provider.
type Orchestrator struct {
	provider    llm.Provider
	retryPolicy retry.Policy
	maxRounds   int
	serviceTier string
	progress    io.Writer // nil disables progress output
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicy overrides the transport retry schedule.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.retryPolicy = p }
}

// WithMaxRounds overrides the round budget.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) { o.maxRounds = n }
}

// WithServiceTier records the tier used for cost accounting.
func WithServiceTier(tier string) Option {
	return func(o *Orchestrator) { o.serviceTier = tier }
}

// WithProgress streams round-by-round progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) { o.progress = w }
}

// NewOrchestrator creates an orchestrator for the given provider.
func NewOrchestrator(provider llm.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		retryPolicy: retry.DefaultPolicy(llm.TransientError),
		maxRounds:   DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives the conversation to completion over the given gateway.
func (o *Orchestrator) Run(ctx context.Context, systemInstruction, userMessage string, gateway *tools.Gateway) (Result, error) {
	definitions, err := gateway.Definitions(ctx)
	if err != nil {
		return Result{}, err
	}
	o.printf("Loaded %d tools.\n", len(definitions))

	collector := metrics.NewCollector(o.provider.Model(), o.serviceTier)
	messages := []llm.ChatMessage{
		llm.SystemMessage(systemInstruction),
		llm.UserMessage(userMessage),
	}

	var toolCallLog []ToolCallRecord
	totalRetries := 0

	for round := 0; round < o.maxRounds; round++ {
		o.printf("\nCalling LLM...\n")

		stream, stats, err := retry.Do(ctx, o.retryPolicy, func(ctx context.Context) (llm.ChatStream, error) {
			return o.provider.StreamChatWithTools(ctx, messages, definitions)
		})
		if stats.Attempts > 0 {
			totalRetries += stats.Attempts - 1
		}
		if err != nil {
			collector.AddRetries(totalRetries)
			return Result{Metrics: collector.Finalize(), ToolCalls: toolCallLog, Retries: totalRetries}, err
		}

		content, accumulator, err := o.consume(ctx, stream, collector)
		if err != nil {
			collector.AddRetries(totalRetries)
			return Result{Metrics: collector.Finalize(), ToolCalls: toolCallLog, Retries: totalRetries}, err
		}

		if accumulator.empty() {
			// Terminal round.
			collector.AddRetries(totalRetries)
			return Result{
				Content:    parseFinalContent(content),
				RawContent: content,
				Metrics:    collector.Finalize(),
				ToolCalls:  toolCallLog,
				Retries:    totalRetries,
			}, nil
		}

		calls := accumulator.assembled()
		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   content,
			ToolCalls: calls,
		})

		for _, call := range calls {
			toolCallLog = append(toolCallLog, ToolCallRecord{Name: call.Name, Arguments: call.Arguments})
			o.printf("\n[Tool Call: %s]\nArguments: %s\n", call.Name, call.Arguments)

			if err := ctx.Err(); err != nil {
				collector.AddRetries(totalRetries)
				return Result{Metrics: collector.Finalize(), ToolCalls: toolCallLog, Retries: totalRetries}, err
			}

			output, err := gateway.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				// Tool failures feed back into the conversation; the
				// model decides how to proceed.
				output = fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
				o.printf("[Tool Error] %s\n", output)
			} else {
				o.printf("[Tool Result] Length: %d\n", len(output))
			}
			messages = append(messages, llm.ToolMessage(call.ID, output))
		}
	}

	collector.AddRetries(totalRetries)
	return Result{Metrics: collector.Finalize(), ToolCalls: toolCallLog, Retries: totalRetries},
		fmt.Errorf("%w after %d rounds", ErrRoundBudget, o.maxRounds)
}

// consume drains one stream, accumulating content, tool-call fragments,
// and usage. The stream is always closed before returning.
func (o *Orchestrator) consume(ctx context.Context, stream llm.ChatStream, collector *metrics.Collector) (string, *toolCallAccumulator, error) {
	defer stream.Close()

	content := ""
	accumulator := newToolCallAccumulator()

	for {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}

		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("stream failed: %w", err)
		}

		if chunk.Usage != nil {
			collector.AddUsage(metrics.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				CachedTokens:     chunk.Usage.CachedTokens,
			})
		}
		if chunk.Content != "" {
			collector.MarkContent()
			content += chunk.Content
			o.printf("%s", chunk.Content)
		}
		for _, tc := range chunk.ToolCalls {
			accumulator.add(tc)
		}
	}

	return content, accumulator, nil
}

// parseFinalContent parses the terminal model content as JSON, falling back
// to fenced extraction, then degrading to a raw wrapper.
func parseFinalContent(content string) json.RawMessage {
	jsonStr, err := ijson.ExtractJSON(content)
	if err != nil {
		degraded, _ := json.Marshal(map[string]string{
			"raw_response": content,
			"error":        err.Error(),
		})
		return degraded
	}
	return json.RawMessage(jsonStr)
}

func (o *Orchestrator) printf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, format, args...)
	}
}
