package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMClient 通用 LLM 客戶端介面
type LLMClient interface {
	// StreamChat 流式對話，返回 StreamEvent channel
	// messages: 對話歷史（使用 llm.Message 結構）
	// tools: 提供給模型的 canonical function schemas（可為 nil）
	// 返回的序列為惰性、有限、不可重啟，並以恰好一個 EventDone 結尾。
	StreamChat(ctx context.Context, messages []Message, tools []FunctionSchema) (<-chan StreamEvent, error)

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool
}

// FunctionSchema is the canonical function-calling schema offered to the
// model. Tool catalogs from every provider are translated into this shape
// before a generation starts.
type FunctionSchema struct {
	Type     string      `json:"type"` // always "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef carries the qualified name, description and parameter schema.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(model string, m *GenerationMetrics) {
	if m == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n> ### 📊 用量統計 (%s)\n", model)
	fmt.Fprintf(&sb, "> | 統計項目 | 數值 |\n")
	fmt.Fprintf(&sb, "> | :--- | :--- |\n")
	fmt.Fprintf(&sb, "> | **提示 (Prompt)** | %d |\n", m.PromptTokens)
	fmt.Fprintf(&sb, "> | **回答 (Response)** | %d |\n", m.CompletionTokens)
	fmt.Fprintf(&sb, "> | **總計 (Total)** | **%d** |\n", m.TotalTokens)

	if m.TokensPerSecond > 0 {
		fmt.Fprintf(&sb, "> | **速率 (tok/s)** | %.2f |\n", m.TokensPerSecond)
	}

	if m.StopReason != "" {
		fmt.Fprintf(&sb, "> | **停止原因 (Reason)** | %s |\n", m.StopReason)
	}

	fmt.Fprint(&sb, "> ---")

	log.Println(sb.String())
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, tools []FunctionSchema) (<-chan StreamEvent, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			log.Printf("⚠️ Previous provider failed. Trying fallback provider #%d...", i+1)
		}

		// 使用配置的重試次數，若為 0 則至少執行 1 次
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				log.Printf("🔄 Retrying provider #%d (attempt %d/%d)...", i+1, retry, maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, tools)
			if err == nil {
				return ch, nil
			}

			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				log.Printf("❌ Provider #%d failed with transient error: %v. Retrying...", i+1, err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			log.Printf("❌ Provider #%d failed: %v", i+1, err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed. Last error: %v", lastErr)
}

// IsTransientError 實作 LLMClient 介面
// FallbackClient 的錯誤通常意味著所有 Child 都失敗了，因此視為非暫時性
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
