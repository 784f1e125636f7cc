package openaicompat

import (
	"fmt"

	"conduit/pkg/config"
	"conduit/pkg/llm"
)

// Factory handles creation of OpenAI-compatible clients. The same factory
// serves any backend speaking the chat-completions dialect; the provider
// type in the config picks the registry entry.
type Factory struct {
	ProviderName string
}

// Create implements ProviderFactory
func (f *Factory) Create(cfg llm.ProviderConfig, sys *config.SystemConfig) (llm.LLMClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("no model configured for provider %s", f.ProviderName)
	}

	client, err := NewClient(f.ProviderName, cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Options)
	if err != nil {
		return nil, err
	}
	if sys != nil {
		client.SetDebug(sys.DebugChunks)
	}
	return client, nil
}

func init() {
	llm.RegisterProvider("openai", &Factory{ProviderName: "openai"})
	llm.RegisterProvider("openai_compatible", &Factory{ProviderName: "openai_compatible"})
	llm.RegisterProvider("deepseek", &Factory{ProviderName: "deepseek"})
}
