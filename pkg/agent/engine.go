package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"conduit/pkg/approval"
	"conduit/pkg/config"
	"conduit/pkg/llm"
	"conduit/pkg/mcp"
	"conduit/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxToolRounds bounds the generate-call-generate loop so a model that
// keeps requesting tools cannot spin forever.
const maxToolRounds = 10

// deniedResultJSON is the tool turn fed back when the user refuses a call.
const deniedResultJSON = `{"error": "User denied permission"}`

// Responder receives streamed output as it is produced. Each surface (CLI,
// HTTP) supplies its own implementation.
type Responder interface {
	OnContent(text string)
	OnThinking(text string)
	OnToolStart(call llm.ToolCall)
	OnToolResult(call llm.ToolCall, result map[string]any)
}

// Approver decides whether one registered tool request may run.
type Approver interface {
	Decide(req *approval.Request) (bool, error)
}

// Engine 代理執行迴圈：串流產生回覆，攔截工具呼叫,經使用者核可後派發,
// 再把結果塞回對話讓模型繼續
type Engine struct {
	client   llm.LLMClient
	catalog  *mcp.Catalog
	gateway  *mcp.Gateway
	gate     *approval.Gate
	approver Approver
	sysCfg   *config.SystemConfig
}

func NewEngine(client llm.LLMClient, catalog *mcp.Catalog, gateway *mcp.Gateway, gate *approval.Gate, approver Approver, sysCfg *config.SystemConfig) *Engine {
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	return &Engine{
		client:   client,
		catalog:  catalog,
		gateway:  gateway,
		gate:     gate,
		approver: approver,
		sysCfg:   sysCfg,
	}
}

// Run drives one user turn to completion: it streams a model response,
// and as long as the model ends a round by requesting tools, gates and
// dispatches each call, appends the results as tool turns, and generates
// again. Returns once a round ends without tool calls.
func (e *Engine) Run(ctx context.Context, history *llm.History, conversationID string, responder Responder) error {
	for round := 0; round < maxToolRounds; round++ {
		calls, err := e.generate(ctx, history, responder)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}

		for _, call := range calls {
			result := e.dispatch(ctx, conversationID, call, responder)

			resultText, err := json.MarshalToString(result)
			if err != nil {
				resultText = fmt.Sprintf(`{"error": "unencodable tool result: %v"}`, err)
			}
			history.Add(llm.NewToolResultMessage(call.ID, call.Name, resultText))
		}
	}

	return fmt.Errorf("tool round limit reached (%d)", maxToolRounds)
}

// generate streams one model round, forwards output to the responder and
// appends the assembled assistant message to history. Returns the tool
// calls the round ended with, if any.
func (e *Engine) generate(ctx context.Context, history *llm.History, responder Responder) ([]llm.ToolCall, error) {
	var schemas []llm.FunctionSchema
	if e.sysCfg.EnableTools && e.catalog != nil {
		schemas = e.catalog.Schemas
	}

	stream, err := e.client.StreamChat(ctx, history.GetMessages(), schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to start generation: %w", err)
	}

	assistant := llm.Message{
		ID:        utils.GenerateID(),
		Role:      "assistant",
		Timestamp: time.Now().Unix(),
	}
	var calls []llm.ToolCall

	for event := range stream {
		switch event.Type {
		case llm.EventContent:
			assistant.AddContentBlock(llm.NewTextBlock(event.Content))
			responder.OnContent(event.Content)

		case llm.EventThinking:
			assistant.AddContentBlock(llm.NewThinkingBlock(event.Thinking))
			if e.sysCfg.ShowThinking {
				responder.OnThinking(event.Thinking)
			}

		case llm.EventToolCall:
			calls = append(calls, *event.ToolCall)

		case llm.EventMetrics:
			assistant.Metrics = event.Metrics

		case llm.EventDone:
			if event.Err != nil {
				history.Add(assistant)
				return nil, fmt.Errorf("generation failed: %w", event.Err)
			}
		}
	}

	assistant.ToolCalls = calls
	history.Add(assistant)
	return calls, nil
}

// dispatch gates one tool call and runs it if approved. It always yields a
// structured result map; denial and routing failures become error payloads
// the model can read instead of aborting the conversation.
func (e *Engine) dispatch(ctx context.Context, conversationID string, call llm.ToolCall, responder Responder) map[string]any {
	args := call.ParsedArguments()
	req := e.gate.Register(conversationID, call.ID, call.Name, args)
	responder.OnToolStart(call)

	approved, err := e.approver.Decide(req)
	if err != nil {
		slog.Error("Approval decision failed", "tool", call.Name, "error", err)
		approved = false
	}

	if !approved {
		if err := e.gate.Deny(call.ID); err != nil {
			slog.Warn("Failed to record denial", "tool", call.Name, "error", err)
		}
		result := map[string]any{"error": "User denied permission"}
		responder.OnToolResult(call, result)
		return result
	}

	if err := e.gate.Approve(call.ID); err != nil {
		result := map[string]any{"error": err.Error()}
		responder.OnToolResult(call, result)
		return result
	}

	serverID, toolName, err := e.catalog.Resolve(call.Name)
	if err != nil {
		e.gate.MarkError(call.ID)
		result := map[string]any{"error": err.Error()}
		responder.OnToolResult(call, result)
		return result
	}

	// The gateway enforces its own timeout, so a canceled caller context
	// does not abandon a dispatch mid-flight.
	result := e.gateway.CallTool(serverID, toolName, args)
	if _, failed := result["error"]; failed {
		e.gate.MarkError(call.ID)
	} else {
		e.gate.MarkExecuted(call.ID)
	}

	responder.OnToolResult(call, result)
	return result
}
