package llm

// StreamEvent Type constants. Every event produced by a provider adapter
// carries exactly one of these; no event mixes channels.
const (
	EventContent  = "content"   // User-visible answer text
	EventThinking = "thinking"  // Reasoning/chain-of-thought side channel
	EventToolCall = "tool_call" // A fully accumulated tool invocation request
	EventMetrics  = "metrics"   // Token usage / throughput statistics
	EventDone     = "done"      // Terminal event, emitted exactly once
)

// StopReason constants define normalized reasons for generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop      = "stop"       // Normal completion
	StopReasonLength    = "length"     // Output truncated due to token limit
	StopReasonToolCalls = "tool_calls" // Generation paused for tool execution
)

// StreamEvent 表示 LLM 串流回應中的一個事件（tagged union）
// Type 決定哪個欄位有效；其餘欄位保持零值。
type StreamEvent struct {
	Type string `json:"type"`

	// Content 文字增量（Type == EventContent 時有效）
	Content string `json:"content,omitempty"`

	// Thinking 思考增量（Type == EventThinking 時有效）
	Thinking string `json:"thinking,omitempty"`

	// ToolCall 完整的工具調用請求（Type == EventToolCall 時有效）
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Metrics 用量統計（Type == EventMetrics 或 EventDone 時可能有值）
	Metrics *GenerationMetrics `json:"metrics,omitempty"`

	// StopReason 停止原因（只在 EventDone 有值）
	StopReason string `json:"stop_reason,omitempty"`

	// Err carries a terminal transport failure attached to the final
	// event. A stream failure degrades to a Done with Err set rather
	// than leaking past the consumer.
	Err error `json:"-"`
}

// ToolCall 表示 LLM 產生的一個工具調用請求
// Arguments 一律為原始 JSON 字串（由 accumulator 逐字拼接而成）。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParsedArguments decodes the raw argument text as a JSON object. Malformed
// argument text yields an empty object, matching the accumulator's own
// fallback, so callers never see a parse failure.
func (tc *ToolCall) ParsedArguments() map[string]any {
	args := make(map[string]any)
	if tc.Arguments == "" {
		return args
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// GenerationMetrics 統一的用量統計結構
type GenerationMetrics struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	TokensPerSecond  float64 `json:"tokens_per_second,omitempty"`
	StopReason       string  `json:"stop_reason,omitempty"`
}

//----------------------------------------------------------------
// Helper Functions - StreamEvent
//----------------------------------------------------------------

// NewContentEvent 建立文字事件
func NewContentEvent(text string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: text}
}

// NewThinkingEvent 建立思考事件
func NewThinkingEvent(text string) StreamEvent {
	return StreamEvent{Type: EventThinking, Thinking: text}
}

// NewToolCallEvent 建立工具調用事件
func NewToolCallEvent(tc ToolCall) StreamEvent {
	return StreamEvent{Type: EventToolCall, ToolCall: &tc}
}

// NewMetricsEvent 建立用量統計事件
func NewMetricsEvent(m *GenerationMetrics) StreamEvent {
	return StreamEvent{Type: EventMetrics, Metrics: m}
}

// NewDoneEvent 建立最終事件（帶停止原因與用量統計）
func NewDoneEvent(reason string, m *GenerationMetrics) StreamEvent {
	return StreamEvent{Type: EventDone, StopReason: reason, Metrics: m}
}

// NewErrorDoneEvent 建立帶錯誤的最終事件
func NewErrorDoneEvent(err error) StreamEvent {
	return StreamEvent{Type: EventDone, Err: err}
}
