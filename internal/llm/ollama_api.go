package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaAPIClient is a direct HTTP client for a local Ollama server.
type OllamaAPIClient struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAPIClient creates a chat client for the Ollama server at baseURL,
// e.g. "http://localhost:11434".
func NewOllamaAPIClient(name, baseURL, model string) *OllamaAPIClient {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaAPIClient{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(),
	}
}

// Name returns the provider name.
func (o *OllamaAPIClient) Name() string { return o.name }

// Complete sends a non-streaming chat request.
func (o *OllamaAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	body := ollamaRequest{
		Model:   pickModel(o.model, req.Model),
		Stream:  false,
		Options: map[string]any{"num_predict": maxTokens(req)},
	}
	if req.Temperature != nil {
		body.Options["temperature"] = *req.Temperature
	}
	if req.System != "" {
		body.Messages = append(body.Messages, Message{Role: RoleSystem, Content: req.System})
	}
	body.Messages = append(body.Messages, req.Messages...)

	var result ollamaAPIResponse
	if err := postJSON(ctx, o.client, o.name, o.baseURL+"/api/chat", nil, body, &result); err != nil {
		return nil, err
	}

	return &CompletionResponse{
		Content:    result.Message.Content,
		StopReason: result.DoneReason,
		Usage: Usage{
			InputTokens:  result.PromptEvalCount,
			OutputTokens: result.EvalCount,
		},
		Model:    result.Model,
		Provider: o.name,
		Duration: time.Since(start),
	}, nil
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaAPIResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}
