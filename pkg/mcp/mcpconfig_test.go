package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServersConfig(t *testing.T) {
	raw := []byte(`{
		"mcpServers": {
			"filesystem": {
				"command": "npx",
				"args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"],
				"env": {"DEBUG": "1"}
			},
			"remote": {
				"url": "http://localhost:9000/rpc"
			}
		}
	}`)

	servers, err := ParseServersConfig(raw)
	require.NoError(t, err)
	require.Len(t, servers, 2)

	// Name order
	fs, remote := servers[0], servers[1]
	assert.Equal(t, "filesystem", fs.Name)
	assert.Equal(t, TransportStdio, fs.Transport)
	assert.Equal(t, "npx", fs.Command)
	assert.Len(t, fs.Args, 3)
	assert.Equal(t, "1", fs.Env["DEBUG"])
	assert.True(t, fs.Enabled)
	assert.NotEmpty(t, fs.ID)

	assert.Equal(t, "remote", remote.Name)
	assert.Equal(t, TransportHTTP, remote.Transport)
	assert.Equal(t, "http://localhost:9000/rpc", remote.URL)
	assert.NotEqual(t, fs.ID, remote.ID)
}

func TestParseServersConfigEmpty(t *testing.T) {
	servers, err := ParseServersConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestParseServersConfigInvalidEntry(t *testing.T) {
	_, err := ParseServersConfig([]byte(`{"mcpServers": {"broken": {}}}`))
	assert.Error(t, err)
}

func TestExportServersConfigRoundTrip(t *testing.T) {
	original := []byte(`{
		"mcpServers": {
			"local": {"command": "mytool", "args": ["serve"]},
			"web": {"url": "http://example.com"}
		}
	}`)

	servers, err := ParseServersConfig(original)
	require.NoError(t, err)

	exported, err := ExportServersConfig(servers)
	require.NoError(t, err)

	reparsed, err := ParseServersConfig(exported)
	require.NoError(t, err)
	require.Len(t, reparsed, 2)
	assert.Equal(t, "mytool", reparsed[0].Command)
	assert.Equal(t, "http://example.com", reparsed[1].URL)
}
