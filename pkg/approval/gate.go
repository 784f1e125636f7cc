package approval

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Request 狀態
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusExecuted = "executed"
	StatusError    = "error"
)

// ErrAlreadyDenied is returned when a caller tries to move a denied request
// forward. Denial is terminal.
var ErrAlreadyDenied = errors.New("request already denied")

// Request is one tool invocation awaiting or past a user decision.
type Request struct {
	ConversationID string         `json:"conversationId"`
	ToolCallID     string         `json:"toolCallId"`
	ToolName       string         `json:"toolName"`
	Arguments      map[string]any `json:"arguments"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	DecidedAt      time.Time      `json:"decidedAt,omitempty"`
}

// Gate tracks approval state per tool call and enforces the legal
// transitions: pending may move to approved or denied; approved may move to
// executed or error; denied is terminal. Every mutation goes through one
// mutex and is flushed to the store before the caller continues.
type Gate struct {
	mu       sync.Mutex
	requests map[string]*Request
	store    *Store
}

// NewGate loads prior state from the store so decisions survive a restart.
func NewGate(store *Store) (*Gate, error) {
	g := &Gate{
		requests: make(map[string]*Request),
		store:    store,
	}
	if store != nil {
		loaded, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load approval state: %w", err)
		}
		for _, req := range loaded {
			g.requests[req.ToolCallID] = req
		}
	}
	return g, nil
}

// Register records a new pending request. Registering a call ID that
// already exists returns the existing request unchanged.
func (g *Gate) Register(conversationID, toolCallID, toolName string, arguments map[string]any) *Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.requests[toolCallID]; ok {
		return existing
	}

	req := &Request{
		ConversationID: conversationID,
		ToolCallID:     toolCallID,
		ToolName:       toolName,
		Arguments:      arguments,
		Status:         StatusPending,
		CreatedAt:      time.Now(),
	}
	g.requests[toolCallID] = req
	g.flush()
	return req
}

// Get returns the request for a tool call ID.
func (g *Gate) Get(toolCallID string) (*Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[toolCallID]
	return req, ok
}

// Approve moves a pending request to approved.
func (g *Gate) Approve(toolCallID string) error {
	return g.transition(toolCallID, StatusApproved, StatusPending)
}

// Deny moves a pending request to its terminal denied state.
func (g *Gate) Deny(toolCallID string) error {
	return g.transition(toolCallID, StatusDenied, StatusPending)
}

// MarkExecuted records a successful dispatch of an approved request.
func (g *Gate) MarkExecuted(toolCallID string) error {
	return g.transition(toolCallID, StatusExecuted, StatusApproved)
}

// MarkError records a failed dispatch of an approved request.
func (g *Gate) MarkError(toolCallID string) error {
	return g.transition(toolCallID, StatusError, StatusApproved)
}

func (g *Gate) transition(toolCallID, to, from string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[toolCallID]
	if !ok {
		return fmt.Errorf("unknown tool call: %s", toolCallID)
	}
	if req.Status == StatusDenied {
		return ErrAlreadyDenied
	}
	if req.Status != from {
		return fmt.Errorf("tool call %s is %s, cannot move to %s", toolCallID, req.Status, to)
	}

	req.Status = to
	req.DecidedAt = time.Now()
	g.flush()
	return nil
}

// flush persists current state. Callers hold the mutex.
func (g *Gate) flush() {
	if g.store == nil {
		return
	}
	requests := make([]*Request, 0, len(g.requests))
	for _, req := range g.requests {
		requests = append(requests, req)
	}
	g.store.Save(requests)
}
