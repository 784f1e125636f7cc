package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"conduit/pkg/agent"
	"conduit/pkg/approval"
	"conduit/pkg/config"
	"conduit/pkg/llm"
	_ "conduit/pkg/llm/autoload" // 自動註冊 LLM Providers
	"conduit/pkg/mcp"
	"conduit/pkg/monitor"
	"conduit/pkg/utils"
)

func main() {
	// --- 0. 讀取設定檔 ---
	cfg, sysCfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}
	monitor.SetupSlog(sysCfg.LogLevel)

	log.Println("==========================================")

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLM, sysCfg)
	if err != nil {
		log.Fatalf("❌ Failed to init LLM client: %v\n", err)
	}

	// --- 2. 工具提供者 ---
	supervisor := mcp.NewSupervisor(sysCfg)
	servers, err := mcp.ParseServersConfig(cfg.MCPServers)
	if err != nil {
		log.Fatalf("❌ Failed to parse tool provider config: %v\n", err)
	}
	for _, server := range servers {
		supervisor.AddServer(server)
	}
	supervisor.StartEnabled()

	gateway := mcp.NewGateway(supervisor, sysCfg)
	catalog := mcp.BuildCatalog(supervisor, gateway)
	log.Printf("✅ Tool catalog ready: %d tools from %d providers", len(catalog.Schemas), len(servers))

	// --- 3. 核可與代理引擎 ---
	gate, err := approval.NewGate(approval.NewStore(sysCfg.ApprovalStorePath))
	if err != nil {
		log.Fatalf("❌ Failed to init approval gate: %v\n", err)
	}

	console := &consoleIO{reader: bufio.NewReader(os.Stdin), showThinking: sysCfg.ShowThinking}
	engine := agent.NewEngine(client, catalog, gateway, gate, console, sysCfg)

	history := llm.NewHistory()
	if cfg.SystemPrompt != "" {
		history.EnsureSystemMessage(cfg.SystemPrompt)
	}
	conversationID := utils.GenerateID()

	// --- 4. 設定熱重載 ---
	go func() {
		for range config.WatchConfig(context.Background(), "system.json") {
			*sysCfg = *config.LoadSystemConfig("system.json")
			monitor.SetupSlog(sysCfg.LogLevel)
			log.Println("🔄 System config reloaded")
		}
	}()

	// --- 5. 信號處理 ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal. Stopping services...")
		supervisor.StopAll()
		log.Println("Bye!")
		os.Exit(0)
	}()

	// --- 6. 主迴圈 ---
	fmt.Println("Type a message, or /quit to exit.")
	for {
		fmt.Print("\n> ")
		line, err := console.reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		history.Add(llm.NewUserMessage(line))

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(sysCfg.LLMTimeoutMs)*time.Millisecond)
		if err := engine.Run(ctx, history, conversationID, console); err != nil {
			log.Printf("❌ Turn failed: %v", err)
		}
		cancel()
		fmt.Println()
	}

	supervisor.StopAll()
	log.Println("Bye!")
}

// consoleIO is both the stream responder and the approver for the CLI
// surface: output goes to stdout, approval decisions come from stdin.
type consoleIO struct {
	reader       *bufio.Reader
	showThinking bool
	inThinking   bool
}

func (c *consoleIO) OnContent(text string) {
	if c.inThinking {
		fmt.Print("\n")
		c.inThinking = false
	}
	fmt.Print(text)
}

func (c *consoleIO) OnThinking(text string) {
	if !c.inThinking {
		fmt.Print("💭 ")
		c.inThinking = true
	}
	fmt.Print(text)
}

func (c *consoleIO) OnToolStart(call llm.ToolCall) {
	fmt.Printf("\n🛠️  %s(%s)\n", call.Name, call.Arguments)
}

func (c *consoleIO) OnToolResult(call llm.ToolCall, result map[string]any) {
	if errMsg, ok := result["error"]; ok {
		fmt.Printf("⚠️  %s failed: %v\n", call.Name, errMsg)
		return
	}
	fmt.Printf("✅ %s done\n", call.Name)
}

// Decide prompts the user for each tool request.
func (c *consoleIO) Decide(req *approval.Request) (bool, error) {
	fmt.Printf("Allow tool %q to run? [y/N] ", req.ToolName)
	answer, err := c.reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
