package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/approval"
	"conduit/pkg/config"
	"conduit/pkg/llm"
	"conduit/pkg/mcp"
)

// scriptedClient replays one prepared event sequence per StreamChat call.
type scriptedClient struct {
	rounds [][]llm.StreamEvent
	calls  int
}

func (s *scriptedClient) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.FunctionSchema) (<-chan llm.StreamEvent, error) {
	if s.calls >= len(s.rounds) {
		return nil, fmt.Errorf("unexpected generation round %d", s.calls)
	}
	round := s.rounds[s.calls]
	s.calls++

	ch := make(chan llm.StreamEvent, len(round))
	for _, ev := range round {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (s *scriptedClient) IsTransientError(err error) bool { return false }

// recordingResponder captures everything the engine forwards.
type recordingResponder struct {
	contents    []string
	thinkings   []string
	toolStarts  []string
	toolResults []map[string]any
}

func (r *recordingResponder) OnContent(text string)  { r.contents = append(r.contents, text) }
func (r *recordingResponder) OnThinking(text string) { r.thinkings = append(r.thinkings, text) }
func (r *recordingResponder) OnToolStart(call llm.ToolCall) {
	r.toolStarts = append(r.toolStarts, call.Name)
}
func (r *recordingResponder) OnToolResult(call llm.ToolCall, result map[string]any) {
	r.toolResults = append(r.toolResults, result)
}

type fixedApprover struct{ allow bool }

func (f fixedApprover) Decide(req *approval.Request) (bool, error) { return f.allow, nil }

func engineTestConfig() *config.SystemConfig {
	cfg := config.DefaultSystemConfig()
	cfg.RPCTimeoutMs = 500
	cfg.HealthTimeoutMs = 500
	return cfg
}

// toolBackend stands up an HTTP provider plus a catalog exposing one tool
// under the given qualified name.
func toolBackend(t *testing.T, qualified string, hits *atomic.Int32) (*mcp.Catalog, *mcp.Gateway) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"id": "x", "result": {"data": "tool says hi"}}`))
	}))
	t.Cleanup(srv.Close)

	sup := mcp.NewSupervisor(engineTestConfig())
	sup.AddServer(&mcp.ServerConfig{
		ID:        "prov-1",
		Name:      "prov",
		Transport: mcp.TransportHTTP,
		URL:       srv.URL,
		Enabled:   true,
	})

	catalog := &mcp.Catalog{
		Schemas: []llm.FunctionSchema{{
			Type:     "function",
			Function: llm.FunctionDef{Name: qualified},
		}},
		ServerIDs: map[string]string{qualified: "prov-1"},
	}
	return catalog, mcp.NewGateway(sup, engineTestConfig())
}

func TestEngineApprovedToolRound(t *testing.T) {
	var hits atomic.Int32
	catalog, gateway := toolBackend(t, "prov__lookup", &hits)

	client := &scriptedClient{rounds: [][]llm.StreamEvent{
		{
			llm.NewThinkingEvent("let me check"),
			llm.NewContentEvent("Looking that up."),
			llm.NewToolCallEvent(llm.ToolCall{ID: "call-1", Name: "prov__lookup", Arguments: `{"q": "x"}`}),
			llm.NewDoneEvent(llm.StopReasonToolCalls, nil),
		},
		{
			llm.NewContentEvent("Here is the answer."),
			llm.NewDoneEvent(llm.StopReasonStop, nil),
		},
	}}

	gate, err := approval.NewGate(nil)
	require.NoError(t, err)
	responder := &recordingResponder{}
	engine := NewEngine(client, catalog, gateway, gate, fixedApprover{allow: true}, engineTestConfig())

	history := llm.NewHistory()
	history.Add(llm.NewUserMessage("look up x"))

	require.NoError(t, engine.Run(context.Background(), history, "conv-1", responder))

	assert.Equal(t, 2, client.calls)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, []string{"Looking that up.", "Here is the answer."}, responder.contents)
	assert.Equal(t, []string{"let me check"}, responder.thinkings)
	assert.Equal(t, []string{"prov__lookup"}, responder.toolStarts)
	require.Len(t, responder.toolResults, 1)
	assert.Equal(t, "tool says hi", responder.toolResults[0]["data"])

	req, ok := gate.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, approval.StatusExecuted, req.Status)

	// History: user, assistant(+tool call), tool turn, final assistant
	messages := history.GetMessages()
	require.Len(t, messages, 4)
	assert.Equal(t, "tool", messages[2].Role)
	assert.Equal(t, "call-1", messages[2].ToolCallID)
	assert.Contains(t, messages[2].GetTextContent(), "tool says hi")
}

func TestEngineDeniedToolNotDispatched(t *testing.T) {
	var hits atomic.Int32
	catalog, gateway := toolBackend(t, "prov__delete", &hits)

	client := &scriptedClient{rounds: [][]llm.StreamEvent{
		{
			llm.NewToolCallEvent(llm.ToolCall{ID: "call-2", Name: "prov__delete", Arguments: `{}`}),
			llm.NewDoneEvent(llm.StopReasonToolCalls, nil),
		},
		{
			llm.NewContentEvent("Understood, not doing that."),
			llm.NewDoneEvent(llm.StopReasonStop, nil),
		},
	}}

	gate, err := approval.NewGate(nil)
	require.NoError(t, err)
	responder := &recordingResponder{}
	engine := NewEngine(client, catalog, gateway, gate, fixedApprover{allow: false}, engineTestConfig())

	history := llm.NewHistory()
	history.Add(llm.NewUserMessage("delete everything"))

	require.NoError(t, engine.Run(context.Background(), history, "conv-1", responder))

	// The provider was never contacted
	assert.Equal(t, int32(0), hits.Load())

	req, ok := gate.Get("call-2")
	require.True(t, ok)
	assert.Equal(t, approval.StatusDenied, req.Status)

	// The model still gets a tool turn explaining the refusal
	messages := history.GetMessages()
	require.Len(t, messages, 4)
	assert.Equal(t, "tool", messages[2].Role)
	assert.Contains(t, messages[2].GetTextContent(), "User denied permission")
}

func TestEngineUnknownToolMarkedError(t *testing.T) {
	var hits atomic.Int32
	catalog, gateway := toolBackend(t, "prov__known", &hits)

	client := &scriptedClient{rounds: [][]llm.StreamEvent{
		{
			llm.NewToolCallEvent(llm.ToolCall{ID: "call-3", Name: "prov__unknown", Arguments: `{}`}),
			llm.NewDoneEvent(llm.StopReasonToolCalls, nil),
		},
		{
			llm.NewContentEvent("ok"),
			llm.NewDoneEvent(llm.StopReasonStop, nil),
		},
	}}

	gate, err := approval.NewGate(nil)
	require.NoError(t, err)
	engine := NewEngine(client, catalog, gateway, gate, fixedApprover{allow: true}, engineTestConfig())

	history := llm.NewHistory()
	history.Add(llm.NewUserMessage("hi"))

	require.NoError(t, engine.Run(context.Background(), history, "conv-1", &recordingResponder{}))

	assert.Equal(t, int32(0), hits.Load())
	req, _ := gate.Get("call-3")
	assert.Equal(t, approval.StatusError, req.Status)

	messages := history.GetMessages()
	assert.Contains(t, messages[2].GetTextContent(), "unknown tool")
}

func TestEngineHidesThinkingWhenDisabled(t *testing.T) {
	client := &scriptedClient{rounds: [][]llm.StreamEvent{
		{
			llm.NewThinkingEvent("secret reasoning"),
			llm.NewContentEvent("visible answer"),
			llm.NewDoneEvent(llm.StopReasonStop, nil),
		},
	}}

	gate, err := approval.NewGate(nil)
	require.NoError(t, err)

	cfg := engineTestConfig()
	cfg.ShowThinking = false
	responder := &recordingResponder{}
	engine := NewEngine(client, nil, nil, gate, fixedApprover{allow: true}, cfg)

	history := llm.NewHistory()
	history.Add(llm.NewUserMessage("hi"))
	require.NoError(t, engine.Run(context.Background(), history, "conv-1", responder))

	assert.Empty(t, responder.thinkings)
	assert.Equal(t, []string{"visible answer"}, responder.contents)

	// Thinking is still recorded in history even when hidden
	messages := history.GetMessages()
	assert.Equal(t, "secret reasoning", messages[1].GetThinkingContent())
}

func TestEngineNoToolsRoundEndsRun(t *testing.T) {
	client := &scriptedClient{rounds: [][]llm.StreamEvent{
		{
			llm.NewContentEvent("plain reply"),
			llm.NewDoneEvent(llm.StopReasonStop, nil),
		},
	}}

	gate, err := approval.NewGate(nil)
	require.NoError(t, err)
	engine := NewEngine(client, nil, nil, gate, fixedApprover{allow: true}, engineTestConfig())

	history := llm.NewHistory()
	history.Add(llm.NewUserMessage("hi"))
	require.NoError(t, engine.Run(context.Background(), history, "conv-1", &recordingResponder{}))

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 2, history.Len())
}
