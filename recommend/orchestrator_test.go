package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/richinex/cerberus/llm"
	"github.com/richinex/cerberus/retry"
	"github.com/richinex/cerberus/tools"
)

// scriptedStream replays canned chunks, then io.EOF.
type scriptedStream struct {
	chunks []llm.StreamChunk
	pos    int
	closed bool
}

func (s *scriptedStream) Recv() (llm.StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		return llm.StreamChunk{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// scriptedProvider returns one scripted stream per round and records the
// messages sent each round. streamErrs, when set for a call index, fails
// stream creation instead.
type scriptedProvider struct {
	rounds     [][]llm.StreamChunk
	streamErrs map[int]error
	call       int
	sent       [][]llm.ChatMessage
	streams    []*scriptedStream
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "gpt-5.1" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return llm.LLMResponse{}, errors.New("not implemented")
}

func (p *scriptedProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, format *llm.ResponseFormat) (llm.LLMResponse, error) {
	return llm.LLMResponse{}, errors.New("not implemented")
}

func (p *scriptedProvider) StreamChatWithTools(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition) (llm.ChatStream, error) {
	idx := p.call
	p.call++
	if err, ok := p.streamErrs[idx]; ok {
		return nil, err
	}
	snapshot := make([]llm.ChatMessage, len(messages))
	copy(snapshot, messages)
	p.sent = append(p.sent, snapshot)

	round := idx - len(p.streamErrs)
	if round >= len(p.rounds) {
		round = len(p.rounds) - 1
	}
	stream := &scriptedStream{chunks: p.rounds[round]}
	p.streams = append(p.streams, stream)
	return stream, nil
}

var _ llm.Provider = (*scriptedProvider)(nil)

// recordingSession returns canned text per tool call.
type recordingSession struct {
	output string
	err    error
	calls  []string
}

func (s *recordingSession) ListTools(ctx context.Context) ([]tools.ToolInfo, error) {
	return []tools.ToolInfo{{Name: "read_query", Description: "run a query"}}, nil
}

func (s *recordingSession) CallTool(ctx context.Context, name string, arguments map[string]interface{}) ([]tools.ContentItem, error) {
	s.calls = append(s.calls, name)
	if s.err != nil {
		return nil, s.err
	}
	return tools.TextContent(s.output), nil
}

func (s *recordingSession) Close() error { return nil }

func fastRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
		Transient:      llm.TransientError,
	}
}

func toolCallRound(id, name, args string) []llm.StreamChunk {
	// Identity first, then argument fragments, mimicking wire behavior.
	half := len(args) / 2
	return []llm.StreamChunk{
		{ToolCalls: []llm.ToolCallChunk{{Index: 0, ID: id, Name: name}}},
		{ToolCalls: []llm.ToolCallChunk{{Index: 0, Arguments: args[:half]}}},
		{ToolCalls: []llm.ToolCallChunk{{Index: 0, Arguments: args[half:]}}},
		{Usage: &llm.TokenUsage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110}},
	}
}

func finalRound(content string) []llm.StreamChunk {
	return []llm.StreamChunk{
		{Content: content},
		{Usage: &llm.TokenUsage{PromptTokens: 50, CompletionTokens: 20, TotalTokens: 70}},
	}
}

func TestRunToolRoundThenFinal(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.StreamChunk{
		toolCallRound("call_1", "read_query", `{"query": "SELECT 1"}`),
		finalRound(`[{"question": "Q", "selected_file": "algebra.pdf"}]`),
	}}
	session := &recordingSession{output: `[{"1": 1}]`}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	result, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.calls) != 1 || session.calls[0] != "read_query" {
		t.Errorf("expected one read_query dispatch, got %v", session.calls)
	}

	// Second round must carry the assistant tool-call turn and its tool turn.
	if len(provider.sent) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(provider.sent))
	}
	secondRound := provider.sent[1]
	assistant := secondRound[len(secondRound)-2]
	toolTurn := secondRound[len(secondRound)-1]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 1 {
		t.Errorf("missing assistant tool-call turn: %+v", assistant)
	}
	if assistant.ToolCalls[0].Arguments != `{"query": "SELECT 1"}` {
		t.Errorf("arguments not reassembled: %q", assistant.ToolCalls[0].Arguments)
	}
	if toolTurn.Role != "tool" || toolTurn.ToolCallID != "call_1" {
		t.Errorf("missing tool turn: %+v", toolTurn)
	}
	if toolTurn.Content != `[{"1": 1}]` {
		t.Errorf("tool output not forwarded: %q", toolTurn.Content)
	}

	var recs []map[string]interface{}
	if err := json.Unmarshal(result.Content, &recs); err != nil {
		t.Fatalf("final content not parsed: %v", err)
	}
	if len(recs) != 1 || recs[0]["selected_file"] != "algebra.pdf" {
		t.Errorf("unexpected payload: %v", recs)
	}

	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "read_query" {
		t.Errorf("tool-call log wrong: %v", result.ToolCalls)
	}
	if result.Metrics.PromptTokens != 150 || result.Metrics.CompletionTokens != 30 {
		t.Errorf("usage not accumulated across rounds: %+v", result.Metrics)
	}

	for i, s := range provider.streams {
		if !s.closed {
			t.Errorf("stream %d not closed", i)
		}
	}
}

func TestRunMalformedToolArgumentsBecomeErrorTurn(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.StreamChunk{
		{
			{ToolCalls: []llm.ToolCallChunk{{Index: 0, ID: "call_1", Name: "read_query", Arguments: `{bad json`}}},
		},
		finalRound(`{"recommendations": []}`),
	}}
	session := &recordingSession{output: "unused"}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	_, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if err != nil {
		t.Fatalf("malformed arguments must not abort the run: %v", err)
	}

	if len(session.calls) != 0 {
		t.Errorf("malformed arguments must not reach the session, got %v", session.calls)
	}

	// The error surfaces to the model as a non-empty tool turn, and the
	// conversation continues with another round.
	if len(provider.sent) != 2 {
		t.Fatalf("expected a second round after the error turn, got %d", len(provider.sent))
	}
	secondRound := provider.sent[1]
	toolTurn := secondRound[len(secondRound)-1]
	if toolTurn.Role != "tool" || toolTurn.Content == "" {
		t.Errorf("expected non-empty error tool turn, got %+v", toolTurn)
	}
	if !strings.Contains(toolTurn.Content, "Error executing tool read_query") {
		t.Errorf("error turn must describe the failure: %q", toolTurn.Content)
	}
}

func TestRunToolExecutionFaultBecomesErrorTurn(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.StreamChunk{
		toolCallRound("call_1", "read_query", `{"query": "SELECT 1"}`),
		finalRound(`[]`),
	}}
	session := &recordingSession{err: errors.New("no such table: nope")}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	_, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if err != nil {
		t.Fatalf("tool failure must not abort the run: %v", err)
	}

	secondRound := provider.sent[1]
	toolTurn := secondRound[len(secondRound)-1]
	if !strings.Contains(toolTurn.Content, "no such table") {
		t.Errorf("tool error not folded into conversation: %q", toolTurn.Content)
	}
}

func TestRunRoundBudget(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.StreamChunk{
		toolCallRound("call_1", "read_query", `{"query": "SELECT 1"}`),
	}}
	session := &recordingSession{output: "[]"}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()), WithMaxRounds(3))

	_, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if !errors.Is(err, ErrRoundBudget) {
		t.Fatalf("expected ErrRoundBudget, got %v", err)
	}
	if len(provider.sent) != 3 {
		t.Errorf("expected exactly 3 rounds, got %d", len(provider.sent))
	}
}

func TestRunRetriesTransientStreamCreation(t *testing.T) {
	provider := &scriptedProvider{
		rounds:     [][]llm.StreamChunk{finalRound(`{"recommendations": []}`)},
		streamErrs: map[int]error{0: errors.New("connection refused")},
	}
	session := &recordingSession{}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	result, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", result.Retries)
	}
	if result.Metrics.Retries != 1 {
		t.Errorf("retries not reported in metrics: %+v", result.Metrics)
	}
}

func TestRunNonTransientFailureAborts(t *testing.T) {
	provider := &scriptedProvider{
		rounds:     [][]llm.StreamChunk{finalRound("{}")},
		streamErrs: map[int]error{0: errors.New("invalid api key")},
	}
	session := &recordingSession{}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	_, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if provider.call != 1 {
		t.Errorf("non-transient failure must not retry, got %d calls", provider.call)
	}
}

func TestRunFencedFinalContent(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.StreamChunk{
		finalRound("Here you go:\n```json\n{\"recommendations\": [{\"question\": \"Q\"}]}\n```"),
	}}
	session := &recordingSession{}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	result, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(result.Content, &payload); err != nil {
		t.Fatalf("fenced content not extracted: %v", err)
	}
	if _, ok := payload["recommendations"]; !ok {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestRunDegradedFinalContent(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.StreamChunk{
		finalRound("I could not produce JSON today."),
	}}
	session := &recordingSession{}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	result, err := o.Run(context.Background(), "system", "user", tools.NewGateway(session))
	if err != nil {
		t.Fatalf("parse failure must not abort the run: %v", err)
	}
	var degraded map[string]string
	if err := json.Unmarshal(result.Content, &degraded); err != nil {
		t.Fatalf("degraded payload not well-formed: %v", err)
	}
	if degraded["raw_response"] != "I could not produce JSON today." {
		t.Errorf("raw content not preserved: %v", degraded)
	}
	if degraded["error"] == "" {
		t.Error("degraded payload must carry the parse error")
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{rounds: [][]llm.StreamChunk{finalRound("{}")}}
	session := &recordingSession{}
	o := NewOrchestrator(provider, WithRetryPolicy(fastRetry()))

	_, err := o.Run(ctx, "system", "user", tools.NewGateway(session))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
