// Streaming types shared by all providers.
//
// A ChatStream yields the raw chunk sequence of one streaming completion.
// Tool calls arrive as per-index fragments that the consumer must assemble:
// id and name appear on the first fragment for an index, argument text is
// split across an arbitrary number of fragments and must be concatenated in
// arrival order.

package llm

// StreamChunk is one chunk of a streaming chat completion.
// Any of the fields may be absent on a given chunk.
type StreamChunk struct {
	Content   string
	ToolCalls []ToolCallChunk
	Usage     *TokenUsage
}

// ToolCallChunk is an incremental fragment of a tool call, keyed by the
// positional index of the call within the assistant turn.
type ToolCallChunk struct {
	Index     int
	ID        string // set on the first fragment only
	Name      string // set on the first fragment only
	Arguments string // argument text fragment, append in arrival order
}

// ChatStream is a pull-based stream of completion chunks.
// Recv returns io.EOF when the stream is exhausted.
type ChatStream interface {
	Recv() (StreamChunk, error)
	Close() error
}
