// Package autoload 以 blank import 觸發各 Provider Factory 的註冊
package autoload

import (
	_ "conduit/pkg/llm/gemini"
	_ "conduit/pkg/llm/ollama"
	_ "conduit/pkg/llm/openaicompat"
)
