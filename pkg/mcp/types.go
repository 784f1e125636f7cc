package mcp

import (
	jsoniter "github.com/json-iterator/go"
)

// json 用於 package mcp 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Transport kinds for tool providers. All transport-specific logic
// (spawn vs. probe, pipe I/O vs. HTTP) lives behind this distinction.
const (
	TransportStdio = "stdio" // Subprocess over stdin/stdout pipes
	TransportHTTP  = "http"  // Network endpoint accepting POSTed requests
)

// Lifecycle states for a provider. The state machine is monotonic per run:
// stopped → running → {stopped, error}. HTTP providers have no persistent
// running handle; their state is re-derived by a liveness probe.
const (
	StateStopped = "stopped"
	StateRunning = "running"
	StateError   = "error"
)

// ServerConfig 描述一個工具提供者（tool provider）
// Name 必須全域唯一，因為它作為 canonical schema 的前綴。
type ServerConfig struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Transport string            `json:"transport"` // TransportStdio | TransportHTTP
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Enabled   bool              `json:"enabled"`
}

// Status 表示一個提供者目前的生命週期狀態
type Status struct {
	State string `json:"state"` // StateStopped | StateRunning | StateError
	Error string `json:"error,omitempty"`
}

// ToolDescriptor is a provider's native description of one callable tool,
// as returned by tools/list.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}
