package llm

import (
	"log/slog"
	"sort"
)

// ToolCallFragment holds the partially accumulated state of one tool call,
// keyed by the upstream delta index. Not observable outside the accumulator
// until finalized.
type ToolCallFragment struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ToolCallAccumulator reconstructs complete tool-call requests from
// index-keyed partial deltas. State is scoped to one generation and must be
// discarded after finalization or stream end.
type ToolCallAccumulator struct {
	fragments map[int]*ToolCallFragment
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{
		fragments: make(map[int]*ToolCallFragment),
	}
}

// AddDelta merges one partial delta into the fragment at the given index.
// The id, once set, is never overwritten with an empty value; argument text
// is concatenated verbatim (it arrives as a streamed JSON fragment, never
// as structured data).
func (a *ToolCallAccumulator) AddDelta(index int, id, name, arguments string) {
	frag, ok := a.fragments[index]
	if !ok {
		frag = &ToolCallFragment{Index: index}
		a.fragments[index] = frag
	}

	if id != "" {
		frag.ID = id
	}
	if name != "" {
		frag.Name += name
	}
	frag.Arguments += arguments
}

// HasCalls reports whether any fragment has been accumulated.
func (a *ToolCallAccumulator) HasCalls() bool {
	return len(a.fragments) > 0
}

// Finalize validates every fragment in ascending index order and returns the
// completed tool calls, resetting the accumulator. Argument text that fails
// to parse as a JSON object is replaced with an empty object; the failure is
// logged and accumulation of the remaining calls proceeds.
func (a *ToolCallAccumulator) Finalize() []ToolCall {
	if len(a.fragments) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(a.fragments))
	for idx := range a.fragments {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		frag := a.fragments[idx]

		args := frag.Arguments
		if args == "" {
			args = "{}"
		} else {
			var probe map[string]any
			if err := json.Unmarshal([]byte(args), &probe); err != nil {
				slog.Warn("Failed to parse accumulated tool arguments, using empty object",
					"tool", frag.Name, "index", idx, "error", err)
				args = "{}"
			}
		}

		calls = append(calls, ToolCall{
			ID:        frag.ID,
			Name:      frag.Name,
			Arguments: args,
		})
	}

	a.fragments = make(map[int]*ToolCallFragment)
	return calls
}
