package recommend

import (
	"testing"

	"github.com/richinex/cerberus/llm"
)

func TestAccumulatorAssemblesFragments(t *testing.T) {
	a := newToolCallAccumulator()
	a.add(llm.ToolCallChunk{Index: 0, ID: "call_1", Name: "read_query"})
	a.add(llm.ToolCallChunk{Index: 0, Arguments: `{"que`})
	a.add(llm.ToolCallChunk{Index: 0, Arguments: `ry": "SELECT 1"}`})

	calls := a.assembled()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "read_query" {
		t.Errorf("unexpected call: %+v", calls[0])
	}
	if calls[0].Arguments != `{"query": "SELECT 1"}` {
		t.Errorf("arguments not reassembled: %q", calls[0].Arguments)
	}
}

func TestAccumulatorSplitInvariance(t *testing.T) {
	argument := `{"query": "SELECT name FROM students WHERE id = 'S1'"}`

	splits := [][]int{
		{len(argument)},
		{1, len(argument) - 1},
		{10, 10, 10, len(argument) - 30},
		{5, 1, 7, 3, len(argument) - 16},
	}

	var reference []llm.ToolCall
	for i, split := range splits {
		a := newToolCallAccumulator()
		a.add(llm.ToolCallChunk{Index: 2, ID: "call_a", Name: "read_query"})
		pos := 0
		for _, n := range split {
			a.add(llm.ToolCallChunk{Index: 2, Arguments: argument[pos : pos+n]})
			pos += n
		}

		calls := a.assembled()
		if i == 0 {
			reference = calls
			continue
		}
		if len(calls) != len(reference) || calls[0] != reference[0] {
			t.Errorf("split %v produced %+v, want %+v", split, calls, reference)
		}
	}
}

func TestAccumulatorIDAndNameSetOnce(t *testing.T) {
	a := newToolCallAccumulator()
	a.add(llm.ToolCallChunk{Index: 0, ID: "first", Name: "read_query"})
	// Later fragments must not overwrite identity.
	a.add(llm.ToolCallChunk{Index: 0, ID: "second", Name: "other", Arguments: "{}"})

	calls := a.assembled()
	if calls[0].ID != "first" || calls[0].Name != "read_query" {
		t.Errorf("identity overwritten: %+v", calls[0])
	}
}

func TestAccumulatorOrdersByIndex(t *testing.T) {
	a := newToolCallAccumulator()
	a.add(llm.ToolCallChunk{Index: 3, ID: "c", Name: "describe_table", Arguments: "{}"})
	a.add(llm.ToolCallChunk{Index: 1, ID: "a", Name: "list_tables", Arguments: "{}"})
	a.add(llm.ToolCallChunk{Index: 2, ID: "b", Name: "read_query", Arguments: "{}"})

	calls := a.assembled()
	if calls[0].ID != "a" || calls[1].ID != "b" || calls[2].ID != "c" {
		t.Errorf("calls not ordered by index: %+v", calls)
	}
}

func TestAccumulatorInterleavedIndexes(t *testing.T) {
	a := newToolCallAccumulator()
	a.add(llm.ToolCallChunk{Index: 0, ID: "a", Name: "read_query", Arguments: `{"query": "SELE`})
	a.add(llm.ToolCallChunk{Index: 1, ID: "b", Name: "read_query", Arguments: `{"query": "SELECT 2"`})
	a.add(llm.ToolCallChunk{Index: 0, Arguments: `CT 1"}`})
	a.add(llm.ToolCallChunk{Index: 1, Arguments: `}`})

	calls := a.assembled()
	if calls[0].Arguments != `{"query": "SELECT 1"}` {
		t.Errorf("call 0 corrupted: %q", calls[0].Arguments)
	}
	if calls[1].Arguments != `{"query": "SELECT 2"}` {
		t.Errorf("call 1 corrupted: %q", calls[1].Arguments)
	}
}
