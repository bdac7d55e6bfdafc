// Package providers contains reasoning engine client implementations.
package providers

import (
	"context"
	"time"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest represents a request to the reasoning engine.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	JSONMode    bool      `json:"json_mode,omitempty"` // ask for a JSON object reply
}

// ChatResponse represents a reasoning engine reply.
type ChatResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider defines the interface for reasoning engine clients.
type Provider interface {
	// Chat sends a chat request and returns the response
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// TestConnection validates the credential and connectivity
	TestConnection(ctx context.Context) error

	// Name returns the provider name
	Name() string
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider    string // "openai" (default) or "ollama"
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration // per-request wall clock, default 120s
	InsecureTLS bool          // skip certificate verification
	DNSCacheTTL time.Duration // refresh interval for the DNS cache
}
