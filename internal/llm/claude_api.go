package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const defaultClaudeBaseURL = "https://api.anthropic.com/v1"

// ClaudeAPIClient is a direct HTTP client for the Anthropic messages API.
type ClaudeAPIClient struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClaudeAPIClient creates a messages API client registered as name.
func NewClaudeAPIClient(name, baseURL, apiKey, model string) *ClaudeAPIClient {
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	return &ClaudeAPIClient{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  newHTTPClient(),
	}
}

// Name returns the provider name.
func (c *ClaudeAPIClient) Name() string { return c.name }

// Complete sends a non-streaming messages request.
func (c *ClaudeAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	body := claudeRequest{
		Model:       pickModel(c.model, req.Model),
		System:      req.System,
		MaxTokens:   maxTokens(req),
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		// The messages API takes the system prompt separately.
		if m.Role == RoleSystem {
			continue
		}
		body.Messages = append(body.Messages, Message{Role: m.Role, Content: m.Content})
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var result claudeAPIResponse
	if err := postJSON(ctx, c.client, c.name, c.baseURL+"/messages", headers, body, &result); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return &CompletionResponse{
		Content:    content.String(),
		StopReason: result.StopReason,
		Usage: Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
		Model:    result.Model,
		Provider: c.name,
		Duration: time.Since(start),
	}, nil
}

type claudeRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type claudeAPIResponse struct {
	ID         string               `json:"id"`
	Model      string               `json:"model"`
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
