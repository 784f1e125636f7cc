package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCallAccumulatorReassembly(t *testing.T) {
	acc := NewToolCallAccumulator()

	acc.AddDelta(0, "call_1", "read_", "")
	acc.AddDelta(0, "", "file", `{"path":`)
	acc.AddDelta(0, "", "", ` "/tmp/x"}`)

	require.True(t, acc.HasCalls())

	calls := acc.Finalize()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, `{"path": "/tmp/x"}`, calls[0].Arguments)

	// Finalize resets state
	assert.False(t, acc.HasCalls())
	assert.Empty(t, acc.Finalize())
}

func TestToolCallAccumulatorAscendingIndexOrder(t *testing.T) {
	acc := NewToolCallAccumulator()

	acc.AddDelta(2, "c", "third", "{}")
	acc.AddDelta(0, "a", "first", "{}")
	acc.AddDelta(1, "b", "second", "{}")

	calls := acc.Finalize()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{calls[0].Name, calls[1].Name, calls[2].Name})
}

func TestToolCallAccumulatorIDNotClobbered(t *testing.T) {
	acc := NewToolCallAccumulator()

	acc.AddDelta(0, "call_9", "tool", "")
	acc.AddDelta(0, "", "", `{"a": 1}`)

	calls := acc.Finalize()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_9", calls[0].ID)
}

func TestToolCallAccumulatorArgumentFallbacks(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "empty arguments become empty object",
			args: nil,
			want: "{}",
		},
		{
			name: "malformed json becomes empty object",
			args: []string{`{"broken":`},
			want: "{}",
		},
		{
			name: "valid json passes through verbatim",
			args: []string{`{"n": `, `42}`},
			want: `{"n": 42}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewToolCallAccumulator()
			acc.AddDelta(0, "id", "tool", "")
			for _, a := range tt.args {
				acc.AddDelta(0, "", "", a)
			}

			calls := acc.Finalize()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].Arguments)
		})
	}
}

func TestParsedArguments(t *testing.T) {
	call := ToolCall{Name: "t", Arguments: `{"k": "v"}`}
	assert.Equal(t, map[string]any{"k": "v"}, call.ParsedArguments())

	broken := ToolCall{Name: "t", Arguments: `not json`}
	assert.Equal(t, map[string]any{}, broken.ParsedArguments())
}
