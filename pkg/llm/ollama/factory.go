package ollama

import (
	"conduit/pkg/config"
	"conduit/pkg/llm"
)

// OllamaFactory handles creation of Ollama Clients
type OllamaFactory struct{}

// Create implements ProviderFactory
func (f *OllamaFactory) Create(cfg llm.ProviderConfig, sys *config.SystemConfig) (llm.LLMClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" && sys != nil {
		baseURL = sys.OllamaDefaultURL
	}

	client, err := NewOllamaClient(cfg.Model, baseURL, cfg.Options)
	if err != nil {
		return nil, err
	}
	if sys != nil {
		client.SetDebug(sys.DebugChunks)
	}
	return client, nil
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
