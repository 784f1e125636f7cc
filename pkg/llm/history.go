package llm

import (
	"sync"
)

// History 管理單一對話的歷史。純記憶體結構；持久化由 API 層協作者負責。
type History struct {
	messages []Message
	mu       sync.RWMutex
}

// NewHistory 建立一個新的歷史管理員
func NewHistory() *History {
	return &History{
		messages: make([]Message, 0),
	}
}

// Add 加入一則新訊息
func (h *History) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
}

// GetMessages 取得目前的對話歷史副本
func (h *History) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// EnsureSystemMessage 確保歷史以指定的系統提示詞開頭
func (h *History) EnsureSystemMessage(prompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) > 0 && h.messages[0].Role == "system" {
		h.messages[0] = NewSystemMessage(prompt)
		return
	}
	h.messages = append([]Message{NewSystemMessage(prompt)}, h.messages...)
}

// Len 回傳目前的訊息數
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
