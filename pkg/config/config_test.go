package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSystemConfigDefaults(t *testing.T) {
	cfg := LoadSystemConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 30000, cfg.RPCTimeoutMs)
	assert.Equal(t, 3000, cfg.StopGraceMs)
	assert.Equal(t, "approvals.json", cfg.ApprovalStorePath)
	assert.True(t, cfg.EnableTools)
}

func TestLoadSystemConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"rpc_timeout_ms": 5000,
		"show_thinking": false,
		"log_level": "debug"
	}`), 0644))

	cfg := LoadSystemConfig(path)
	assert.Equal(t, 5000, cfg.RPCTimeoutMs)
	assert.False(t, cfg.ShowThinking)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults
	assert.Equal(t, 10000, cfg.HealthTimeoutMs)
}

func TestLoadSystemConfigCorruptFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	cfg := LoadSystemConfig(path)
	assert.Equal(t, DefaultSystemConfig().RPCTimeoutMs, cfg.RPCTimeoutMs)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	// Missing config.json is fatal
	_, _, err := Load()
	require.Error(t, err)

	require.NoError(t, os.WriteFile("config.json", []byte(`{
		"llm": [{"type": "ollama", "model": "llama3"}],
		"system_prompt": "You are helpful."
	}`), 0644))

	cfg, sysCfg, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.LLM)
	assert.Equal(t, "You are helpful.", cfg.SystemPrompt)
	assert.NotNil(t, sysCfg)
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{LLM: []byte(`[]`)}).Validate())
}
