package mcp

import (
	"fmt"
	"log/slog"
	"strings"

	"conduit/pkg/llm"
)

// NameSeparator joins a provider name and a tool name into the flat
// identifier exposed to the model, e.g. "filesystem__read_file".
const NameSeparator = "__"

// QualifyName builds the flat model-facing tool identifier.
func QualifyName(serverName, toolName string) string {
	return serverName + NameSeparator + toolName
}

// ParseQualifiedName splits a model-facing identifier back into provider
// and tool. The split is on the first separator, so tool names are free to
// contain the separator themselves.
func ParseQualifiedName(qualified string) (serverName, toolName string, err error) {
	idx := strings.Index(qualified, NameSeparator)
	if idx < 0 {
		return "", "", fmt.Errorf("unqualified tool name: %s", qualified)
	}
	return qualified[:idx], qualified[idx+len(NameSeparator):], nil
}

// ToFunctionSchema converts one provider tool descriptor into the function
// declaration shape the model backends accept. Tools that declare no input
// schema get an empty object schema so backends that require one do not
// reject the catalog.
func ToFunctionSchema(tool ToolDescriptor, serverName string) llm.FunctionSchema {
	params := tool.InputSchema
	if len(params) == 0 {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return llm.FunctionSchema{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        QualifyName(serverName, tool.Name),
			Description: tool.Description,
			Parameters:  params,
		},
	}
}

// Catalog is the merged tool surface of every reachable provider: the flat
// schema list handed to the model plus the reverse map that routes a
// qualified name back to its provider.
type Catalog struct {
	Schemas []llm.FunctionSchema
	// ServerIDs keys qualified tool names to provider IDs.
	ServerIDs map[string]string
}

// BuildCatalog queries each running enabled provider for its tools and
// merges them into one catalog. A provider whose listing fails is logged
// and skipped; the rest of the catalog still builds.
func BuildCatalog(sup *Supervisor, gw *Gateway) *Catalog {
	catalog := &Catalog{
		ServerIDs: make(map[string]string),
	}

	for _, cfg := range sup.List() {
		if !cfg.Enabled || !sup.IsRunning(cfg.ID) {
			continue
		}

		tools, err := gw.ListTools(cfg.ID)
		if err != nil {
			slog.Warn("Failed to list provider tools", "provider", cfg.Name, "error", err)
			continue
		}

		for _, tool := range tools {
			qualified := QualifyName(cfg.Name, tool.Name)
			catalog.Schemas = append(catalog.Schemas, ToFunctionSchema(tool, cfg.Name))
			catalog.ServerIDs[qualified] = cfg.ID
		}
		slog.Info("Loaded provider tools", "provider", cfg.Name, "tools", len(tools))
	}

	return catalog
}

// Resolve maps a qualified tool name to its provider ID and bare tool name.
func (c *Catalog) Resolve(qualified string) (serverID, toolName string, err error) {
	serverID, ok := c.ServerIDs[qualified]
	if !ok {
		return "", "", fmt.Errorf("unknown tool: %s", qualified)
	}
	_, toolName, err = ParseQualifiedName(qualified)
	if err != nil {
		return "", "", err
	}
	return serverID, toolName, nil
}
