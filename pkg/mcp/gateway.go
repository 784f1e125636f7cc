package mcp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"conduit/pkg/config"
	"conduit/pkg/utils"
)

// rpcRequest 是送往工具提供者的 JSON-RPC 請求
type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     string              `json:"id"`
	Result jsoniter.RawMessage `json:"result"`
	Error  *rpcErrorBody       `json:"error"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Gateway issues tool RPCs against providers managed by a Supervisor. It
// carries the transport differences (stdio line protocol vs HTTP POST) so
// callers only ever see structured results.
type Gateway struct {
	sup        *Supervisor
	sysCfg     *config.SystemConfig
	httpClient *http.Client
}

func NewGateway(sup *Supervisor, sysCfg *config.SystemConfig) *Gateway {
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	return &Gateway{
		sup:    sup,
		sysCfg: sysCfg,
		httpClient: &http.Client{
			Timeout: time.Duration(sysCfg.RPCTimeoutMs) * time.Millisecond,
		},
	}
}

// ListTools asks one provider for its tool descriptors.
func (g *Gateway) ListTools(serverID string) ([]ToolDescriptor, error) {
	raw, err := g.call(serverID, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool list: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool on a provider and always returns a structured
// result. Transport and timeout failures come back as an error payload
// rather than a Go error, so the model sees them as a tool turn instead of
// the conversation aborting.
func (g *Gateway) CallTool(serverID, toolName string, arguments map[string]any) map[string]any {
	raw, err := g.call(serverID, "tools/call", map[string]any{
		"name":      toolName,
		"arguments": arguments,
	})
	if err != nil {
		if err == errRPCTimeout {
			return map[string]any{"error": "timed out"}
		}
		return map[string]any{"error": err.Error()}
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		// Non-object result, hand it back wrapped.
		var anyResult any
		if err := json.Unmarshal(raw, &anyResult); err != nil {
			return map[string]any{"error": fmt.Sprintf("unparseable tool result: %v", err)}
		}
		return map[string]any{"result": anyResult}
	}
	return result
}

// call routes one RPC by transport and unwraps the response envelope: the
// result field when present, the RPC error when the provider reports one.
func (g *Gateway) call(serverID, method string, params map[string]any) ([]byte, error) {
	cfg, ok := g.sup.Get(serverID)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", serverID)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      utils.GenerateID(),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var line string
	switch cfg.Transport {
	case TransportStdio:
		line, err = g.callStdio(serverID, cfg, payload, req.ID)
	case TransportHTTP:
		line, err = g.callHTTP(cfg, payload)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.UnmarshalFromString(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", cfg.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("provider error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) > 0 {
		return resp.Result, nil
	}
	// No envelope, treat the whole payload as the result.
	return []byte(line), nil
}

func (g *Gateway) callStdio(serverID string, cfg *ServerConfig, payload []byte, reqID string) (string, error) {
	conn, ok := g.sup.conn(serverID)
	if !ok {
		return "", fmt.Errorf("provider %s is not running", cfg.Name)
	}

	timeout := time.Duration(g.sysCfg.RPCTimeoutMs) * time.Millisecond
	line, err := conn.roundTrip(payload, timeout, func(line string) bool {
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.UnmarshalFromString(line, &probe); err != nil {
			slog.Debug("Skipping unparseable provider output", "provider", cfg.Name)
			return false
		}
		return probe.ID == reqID
	})
	if err == errRPCTimeout {
		slog.Warn("Tool RPC timed out", "provider", cfg.Name, "timeout", timeout)
		return "", errRPCTimeout
	}
	return line, err
}

func (g *Gateway) callHTTP(cfg *ServerConfig, payload []byte) (string, error) {
	resp, err := g.httpClient.Post(cfg.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			slog.Warn("Tool RPC timed out", "provider", cfg.Name)
			return "", errRPCTimeout
		}
		return "", fmt.Errorf("request to %s failed: %w", cfg.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", cfg.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider %s returned status %d", cfg.Name, resp.StatusCode)
	}
	return string(body), nil
}
