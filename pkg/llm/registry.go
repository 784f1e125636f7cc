package llm

import (
	"conduit/pkg/config"
)

// ProviderConfig 定義一個模型後端的配置
type ProviderConfig struct {
	Type    string         `json:"type"`
	APIKey  string         `json:"api_key,omitempty"`
	Model   string         `json:"model"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ProviderFactory 定義建立 LLM Client 的工廠介面
type ProviderFactory interface {
	// Create 根據配置建立一個 atomic client
	Create(cfg ProviderConfig, systemConfig *config.SystemConfig) (LLMClient, error)
}

// 全域 Provider 註冊表
var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider 註冊一個 Provider Factory
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory 取得指定名稱的 Provider Factory
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
