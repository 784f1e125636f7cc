package approval

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := NewGate(nil)
	require.NoError(t, err)
	return gate
}

func TestGateApprovalFlow(t *testing.T) {
	gate := newTestGate(t)

	req := gate.Register("conv-1", "call-1", "filesystem__read_file", map[string]any{"path": "/tmp/x"})
	assert.Equal(t, StatusPending, req.Status)

	require.NoError(t, gate.Approve("call-1"))
	require.NoError(t, gate.MarkExecuted("call-1"))

	stored, ok := gate.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, StatusExecuted, stored.Status)
}

func TestGateApprovedDispatchFailure(t *testing.T) {
	gate := newTestGate(t)
	gate.Register("conv-1", "call-2", "tool", nil)

	require.NoError(t, gate.Approve("call-2"))
	require.NoError(t, gate.MarkError("call-2"))

	stored, _ := gate.Get("call-2")
	assert.Equal(t, StatusError, stored.Status)
}

func TestGateDenialIsTerminal(t *testing.T) {
	gate := newTestGate(t)
	gate.Register("conv-1", "call-3", "tool", nil)

	require.NoError(t, gate.Deny("call-3"))

	assert.ErrorIs(t, gate.Approve("call-3"), ErrAlreadyDenied)
	assert.ErrorIs(t, gate.MarkExecuted("call-3"), ErrAlreadyDenied)
	assert.ErrorIs(t, gate.Deny("call-3"), ErrAlreadyDenied)

	stored, _ := gate.Get("call-3")
	assert.Equal(t, StatusDenied, stored.Status)
}

func TestGateIllegalTransitions(t *testing.T) {
	gate := newTestGate(t)
	gate.Register("conv-1", "call-4", "tool", nil)

	// Cannot mark executed without approval
	assert.Error(t, gate.MarkExecuted("call-4"))

	require.NoError(t, gate.Approve("call-4"))
	// Cannot deny once approved
	assert.Error(t, gate.Deny("call-4"))

	// Unknown call
	assert.Error(t, gate.Approve("nope"))
}

func TestGateRegisterIsIdempotent(t *testing.T) {
	gate := newTestGate(t)

	first := gate.Register("conv-1", "call-5", "tool", nil)
	require.NoError(t, gate.Deny("call-5"))

	again := gate.Register("conv-1", "call-5", "tool", nil)
	assert.Same(t, first, again)
	assert.Equal(t, StatusDenied, again.Status)
}

func TestGatePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	store := NewStore(path)

	gate, err := NewGate(store)
	require.NoError(t, err)
	gate.Register("conv-1", "call-6", "tool", map[string]any{"n": float64(1)})
	require.NoError(t, gate.Deny("call-6"))

	// A fresh gate over the same store sees the prior decision
	reloaded, err := NewGate(store)
	require.NoError(t, err)

	stored, ok := reloaded.Get("call-6")
	require.True(t, ok)
	assert.Equal(t, StatusDenied, stored.Status)
	assert.ErrorIs(t, reloaded.Approve("call-6"), ErrAlreadyDenied)
}

func TestStoreMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-written.json"))
	requests, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, requests)
}
