package openaicompat

import (
	"context"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/respjson"
	"github.com/openai/openai-go/v3/shared"

	jsoniter "github.com/json-iterator/go"

	"conduit/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to any OpenAI-compatible chat-completions endpoint. This is
// the adapter for backends that interleave reasoning into the content
// stream behind think tags, so content deltas pass through a ThinkSplitter
// and tool-call fragments through a ToolCallAccumulator before anything is
// emitted downstream.
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI-compatible client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.FunctionSchema) (<-chan llm.StreamEvent, error) {
	eventCh := make(chan llm.StreamEvent, 100)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: c.convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = openai.Float(t)
	}
	if p, ok := c.options["top_p"].(float64); ok {
		params.TopP = openai.Float(p)
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxCompletionTokens = openai.Int(int64(maxTok))
	}

	if converted := c.convertTools(tools); len(converted) > 0 {
		params.Tools = converted
	}

	go func() {
		defer close(eventCh)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		debugger := llm.NewStreamDebugger(ctx, c.provider, c.debugEnabled)
		defer debugger.Close()

		splitter := llm.NewThinkSplitter()
		accumulator := llm.NewToolCallAccumulator()

		var finishReason string
		var metrics *llm.GenerationMetrics

		for stream.Next() {
			chunk := stream.Current()
			debugger.WriteString(chunk.RawJSON())

			if chunk.Usage.TotalTokens > 0 {
				metrics = &llm.GenerationMetrics{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			// Native reasoning fields (DeepSeek-style) bypass the splitter
			if thought := extraThinking(choice.Delta.JSON.ExtraFields); thought != "" {
				eventCh <- llm.NewThinkingEvent(thought)
			}

			if choice.Delta.Content != "" {
				for _, ev := range splitter.Write(choice.Delta.Content) {
					eventCh <- ev
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				accumulator.AddDelta(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
			}

			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}

		for _, ev := range splitter.Flush() {
			eventCh <- ev
		}

		if err := stream.Err(); err != nil {
			slog.Error("Stream error", "provider", c.provider, "model", c.model, "error", err)
			eventCh <- llm.NewErrorDoneEvent(err)
			return
		}

		reason := normalizeStopReason(finishReason)

		if reason == llm.StopReasonToolCalls || accumulator.HasCalls() {
			for _, call := range accumulator.Finalize() {
				slog.Debug("Tool call", "provider", c.provider, "name", call.Name, "id", call.ID)
				eventCh <- llm.NewToolCallEvent(call)
			}
			reason = llm.StopReasonToolCalls
		}

		if metrics != nil {
			metrics.StopReason = reason
			eventCh <- llm.NewMetricsEvent(metrics)
			llm.LogUsage(c.model, metrics)
		}

		if reason == llm.StopReasonLength {
			slog.Warn("Response truncated due to length", "provider", c.provider)
		}

		eventCh <- llm.NewDoneEvent(reason, metrics)
	}()

	return eventCh, nil
}

func (c *Client) convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	items := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case "system":
			items = append(items, openai.SystemMessage(m.GetTextContent()))
		case "user":
			items = append(items, openai.UserMessage(m.GetTextContent()))
		case "assistant":
			if len(m.ToolCalls) > 0 {
				assistant := openai.ChatCompletionAssistantMessageParam{}
				if text := m.GetTextContent(); text != "" {
					assistant.Content.OfString = openai.String(text)
				}
				for _, tc := range m.ToolCalls {
					assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Arguments,
							},
						},
					})
				}
				items = append(items, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
			} else {
				items = append(items, openai.AssistantMessage(m.GetTextContent()))
			}
		case "tool", "tool_result":
			items = append(items, openai.ToolMessage(m.GetTextContent(), m.ToolCallID))
		}
	}

	return items
}

func (c *Client) convertTools(tools []llm.FunctionSchema) []openai.ChatCompletionToolUnionParam {
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  shared.FunctionParameters(t.Function.Parameters),
		}))
	}
	return out
}

// extraThinking digs native reasoning deltas out of non-standard response
// fields. Different backends spell the key differently.
func extraThinking(extra map[string]respjson.Field) string {
	for _, key := range []string{"reasoning_content", "reasoning", "thinking"} {
		field, ok := extra[key]
		if !ok || !field.Valid() {
			continue
		}
		var thought string
		if err := json.UnmarshalFromString(field.Raw(), &thought); err == nil && thought != "" {
			return thought
		}
	}
	return ""
}

// normalizeStopReason converts provider finish_reason spellings to the
// standardized lowercase set.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	case "tool_calls", "function_call":
		return llm.StopReasonToolCalls
	default:
		return strings.ToLower(reason)
	}
}
