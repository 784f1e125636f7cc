package llm

import (
	"fmt"
	"log"
	"time"

	"conduit/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig 根據設定檔建立 LLM Client
// 設定為 ProviderConfig 陣列；多於一個時包裹在 FallbackClient 中分級嘗試。
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (LLMClient, error) {
	if rawLLM == nil {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var providers []ProviderConfig
	if err := json.Unmarshal(rawLLM, &providers); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %v", err)
	}

	var clients []LLMClient
	for _, pc := range providers {
		log.Printf("Loading LLM provider: %s (model %s)", pc.Type, pc.Model)

		factory, ok := GetProviderFactory(pc.Type)
		if !ok {
			log.Printf("⚠️ Unknown provider type: %s", pc.Type)
			continue
		}

		client, err := factory.Create(pc, system)
		if err != nil {
			log.Printf("⚠️ Failed to create client for %s: %v", pc.Type, err)
			continue
		}

		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	log.Printf("✅ Total LLM clients initialized: %d", len(clients))

	// 如果只有一個，直接回傳
	if len(clients) == 1 {
		return clients[0], nil
	}

	// 否則包裹在 FallbackClient 中，並代入系統層級的重試設定
	return &FallbackClient{
		Clients:    clients,
		MaxRetries: system.MaxRetries,
		RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
	}, nil
}
