// Package llm talks to chat-completion models. Each provider is a small
// HTTP client; Registry builds them from config and Failover tries them
// in preference order.
package llm

import (
	"context"
	"fmt"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const defaultMaxTokens = 1024

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is provider neutral. Model overrides the provider's
// configured model only where a provider allows it.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// ProviderError reports a provider that answered badly or not at all.
// Code is the HTTP status, or zero for transport failures.
type ProviderError struct {
	Provider string
	Message  string
	Code     int
}

func (e *ProviderError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
}

// Transient reports whether retrying the same provider later could help:
// transport errors, throttling and server faults.
func (e *ProviderError) Transient() bool {
	return e.Code == 0 || e.Code == 429 || e.Code >= 500
}
