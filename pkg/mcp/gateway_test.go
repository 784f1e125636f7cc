package mcp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/config"
)

func testSystemConfig() *config.SystemConfig {
	cfg := config.DefaultSystemConfig()
	cfg.RPCTimeoutMs = 500
	cfg.HealthTimeoutMs = 500
	cfg.StopGraceMs = 200
	return cfg
}

// httpProviderServer fakes an HTTP tool provider with a fixed response body.
func httpProviderServer(t *testing.T, handler http.HandlerFunc) (*Supervisor, *Gateway, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sup := NewSupervisor(testSystemConfig())
	cfg := &ServerConfig{
		ID:        "http-1",
		Name:      "remote",
		Transport: TransportHTTP,
		URL:       srv.URL,
		Enabled:   true,
	}
	sup.AddServer(cfg)

	return sup, NewGateway(sup, testSystemConfig()), cfg.ID
}

func TestGatewayCallToolHTTP(t *testing.T) {
	sup, gw, id := httpProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"method":"tools/call"`)
		assert.Contains(t, string(body), `"name":"echo"`)
		w.Write([]byte(`{"id": "x", "result": {"output": "hi"}}`))
	})
	_ = sup

	result := gw.CallTool(id, "echo", map[string]any{"text": "hi"})
	assert.Equal(t, map[string]any{"output": "hi"}, result)
}

func TestGatewayCallToolTimeout(t *testing.T) {
	_, gw, id := httpProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})

	result := gw.CallTool(id, "slow", nil)
	assert.Equal(t, map[string]any{"error": "timed out"}, result)
}

func TestGatewayCallToolProviderError(t *testing.T) {
	_, gw, id := httpProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "x", "error": {"code": -32601, "message": "no such tool"}}`))
	})

	result := gw.CallTool(id, "missing", nil)
	errMsg, ok := result["error"].(string)
	require.True(t, ok)
	assert.Contains(t, errMsg, "no such tool")
}

func TestGatewayCallToolUnknownProvider(t *testing.T) {
	sup := NewSupervisor(testSystemConfig())
	gw := NewGateway(sup, testSystemConfig())

	result := gw.CallTool("nope", "tool", nil)
	errMsg, ok := result["error"].(string)
	require.True(t, ok)
	assert.Contains(t, errMsg, "unknown provider")
}

func TestGatewayListTools(t *testing.T) {
	_, gw, id := httpProviderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "x", "result": {"tools": [
			{"name": "read_file", "description": "Read a file", "inputSchema": {"type": "object"}},
			{"name": "write_file", "description": "Write a file"}
		]}}`))
	})

	tools, err := gw.ListTools(id)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "read_file", tools[0].Name)
	assert.Equal(t, "Read a file", tools[0].Description)
	assert.Empty(t, tools[1].InputSchema)
}

func TestGatewayCallToolStdio(t *testing.T) {
	sup := NewSupervisor(testSystemConfig())
	cfg := &ServerConfig{
		ID:        "stdio-1",
		Name:      "local",
		Transport: TransportStdio,
		Enabled:   true,
	}
	sup.AddServer(cfg)

	// Inject an in-memory connection answering every request by id
	conn := fakeProvider(t, func(line string) string {
		var req rpcRequest
		if err := json.UnmarshalFromString(line, &req); err != nil {
			return ""
		}
		reply, _ := json.MarshalToString(map[string]any{
			"id":     req.ID,
			"result": map[string]any{"method": req.Method},
		})
		return reply
	})
	sup.mu.Lock()
	sup.procs[cfg.ID] = &procHandle{conn: conn, exited: make(chan struct{})}
	sup.mu.Unlock()

	gw := NewGateway(sup, testSystemConfig())
	result := gw.CallTool(cfg.ID, "anything", map[string]any{"k": "v"})
	assert.Equal(t, map[string]any{"method": "tools/call"}, result)
}

func TestGatewayCallToolStdioNotRunning(t *testing.T) {
	sup := NewSupervisor(testSystemConfig())
	sup.AddServer(&ServerConfig{
		ID:        "stdio-2",
		Name:      "down",
		Transport: TransportStdio,
		Enabled:   true,
	})

	gw := NewGateway(sup, testSystemConfig())
	result := gw.CallTool("stdio-2", "tool", nil)
	errMsg, ok := result["error"].(string)
	require.True(t, ok)
	assert.Contains(t, errMsg, "not running")
}
