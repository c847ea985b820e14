// Streaming tool-call assembly.
//
// Tool calls arrive as interleaved fragments keyed by index: id and name
// usually on the first fragment, argument JSON split across many. The
// accumulator pins id/name on first non-empty sight and concatenates
// argument fragments in arrival order; nothing is ever overwritten.

package recommend

import (
	"sort"
	"strings"

	"github.com/richinex/cerberus/llm"
)

type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

// toolCallAccumulator assembles complete tool calls from stream fragments.
type toolCallAccumulator struct {
	calls map[int]*partialToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: map[int]*partialToolCall{}}
}

// add merges one fragment into the call being built at its index.
func (a *toolCallAccumulator) add(chunk llm.ToolCallChunk) {
	call, ok := a.calls[chunk.Index]
	if !ok {
		call = &partialToolCall{}
		a.calls[chunk.Index] = call
	}
	if call.id == "" && chunk.ID != "" {
		call.id = chunk.ID
	}
	if call.name == "" && chunk.Name != "" {
		call.name = chunk.Name
	}
	if chunk.Arguments != "" {
		call.args.WriteString(chunk.Arguments)
	}
}

// empty reports whether no fragments arrived this round.
func (a *toolCallAccumulator) empty() bool {
	return len(a.calls) == 0
}

// assembled returns the completed calls ordered by index.
func (a *toolCallAccumulator) assembled() []llm.ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	result := make([]llm.ToolCall, len(indexes))
	for i, idx := range indexes {
		call := a.calls[idx]
		result[i] = llm.ToolCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: call.args.String(),
		}
	}
	return result
}
