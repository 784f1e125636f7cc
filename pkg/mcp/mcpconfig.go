package mcp

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"conduit/pkg/utils"
)

// serverEntry is the on-disk shape of one provider inside "mcpServers".
// Command entries describe a stdio subprocess; url entries an HTTP endpoint.
type serverEntry struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

type serversFile struct {
	MCPServers map[string]serverEntry `json:"mcpServers"`
}

// ParseServersConfig 解析 mcpServers 設定並轉成內部的 ServerConfig 列表
//
// Each entry gets a freshly generated ID; the map key becomes the provider
// name used for tool qualification. Entries are returned in name order so
// startup logs stay stable across runs.
func ParseServersConfig(raw jsoniter.RawMessage) ([]*ServerConfig, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var file serversFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mcpServers config: %w", err)
	}

	names := make([]string, 0, len(file.MCPServers))
	for name := range file.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	var servers []*ServerConfig
	for _, name := range names {
		entry := file.MCPServers[name]

		cfg := &ServerConfig{
			ID:      utils.GenerateID(),
			Name:    name,
			Enabled: true,
		}
		switch {
		case entry.Command != "":
			cfg.Transport = TransportStdio
			cfg.Command = entry.Command
			cfg.Args = entry.Args
			cfg.Env = entry.Env
		case entry.URL != "":
			cfg.Transport = TransportHTTP
			cfg.URL = entry.URL
		default:
			return nil, fmt.Errorf("provider %s has neither command nor url", name)
		}
		servers = append(servers, cfg)
	}

	return servers, nil
}

// ExportServersConfig renders provider configurations back into the
// mcpServers file format. IDs and enabled flags are runtime-only and are
// not written out.
func ExportServersConfig(servers []*ServerConfig) (jsoniter.RawMessage, error) {
	file := serversFile{MCPServers: make(map[string]serverEntry, len(servers))}

	for _, cfg := range servers {
		entry := serverEntry{}
		switch cfg.Transport {
		case TransportStdio:
			entry.Command = cfg.Command
			entry.Args = cfg.Args
			entry.Env = cfg.Env
		case TransportHTTP:
			entry.URL = cfg.URL
		default:
			return nil, fmt.Errorf("provider %s has unsupported transport %s", cfg.Name, cfg.Transport)
		}
		file.MCPServers[cfg.Name] = entry
	}

	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode mcpServers config: %w", err)
	}
	return out, nil
}
