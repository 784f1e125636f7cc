package gemini

import (
	"fmt"

	"conduit/pkg/config"
	"conduit/pkg/llm"
)

// GeminiFactory handles creation of Gemini Clients
type GeminiFactory struct{}

// Create implements ProviderFactory
func (f *GeminiFactory) Create(cfg llm.ProviderConfig, sys *config.SystemConfig) (llm.LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an api_key")
	}

	// Determine thinking mode from unified options
	useThought := false
	if effort, ok := cfg.Options["thinking_effort"].(string); ok && effort != "" && effort != "off" {
		useThought = true
	}

	client, err := NewGeminiClient(cfg.APIKey, cfg.Model, useThought)
	if err != nil {
		return nil, err
	}
	if sys != nil {
		client.SetDebug(sys.DebugChunks)
	}
	return client, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
