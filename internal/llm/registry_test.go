package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func failing(name string, code int) *MockClient {
	return &MockClient{ProviderName: name, CompleteFunc: func(context.Context, CompletionRequest) (*CompletionResponse, error) {
		return nil, &ProviderError{Provider: name, Message: "down", Code: code}
	}}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(silentLog())
	assert.Empty(t, reg.List())

	reg.Register("b", &MockClient{ProviderName: "b"})
	reg.Register("a", &MockClient{ProviderName: "a"})
	assert.Equal(t, []string{"a", "b"}, reg.List())

	c, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", c.Name())
	_, ok = reg.Get("z")
	assert.False(t, ok)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.LLMConfig{
		Primary: "groq",
		Providers: map[string]config.ProviderEntry{
			"groq":   {API: "openai", BaseURL: "https://api.groq.com/openai/v1", APIKey: "gsk-test", Model: "llama-3.3-70b-versatile"},
			"local":  {API: "ollama", Model: "llama3"},
			"claude": {API: "claude", APIKey: "${ANTHROPIC_API_KEY}", Model: "claude-sonnet"},
		},
	}

	reg, err := NewRegistryFromConfig(cfg, silentLog())
	require.NoError(t, err)
	assert.Equal(t, []string{"groq", "local"}, reg.List())

	c, ok := reg.Get("local")
	require.True(t, ok)
	assert.IsType(t, &OllamaAPIClient{}, c)
}

func TestNewRegistryFromConfig_UnknownAPI(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.ProviderEntry{"x": {API: "carrier-pigeon", APIKey: "k", Model: "m"}},
	}
	_, err := NewRegistryFromConfig(cfg, silentLog())
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestFailover(t *testing.T) {
	tests := []struct {
		name      string
		providers map[string]*MockClient
		order     []string
		want      string
		untouched []string
	}{
		{
			name:      "primary answers",
			providers: map[string]*MockClient{"groq": {ProviderName: "groq"}, "backup": {ProviderName: "backup"}},
			order:     []string{"groq", "backup"},
			want:      "groq",
			untouched: []string{"backup"},
		},
		{
			name:      "throttled primary falls through",
			providers: map[string]*MockClient{"groq": failing("groq", 429), "backup": {ProviderName: "backup"}},
			order:     []string{"groq", "missing", "backup"},
			want:      "backup",
		},
		{
			name:      "rejected key still falls through",
			providers: map[string]*MockClient{"claude": failing("claude", 401), "local": {ProviderName: "local"}},
			order:     []string{"claude", "local"},
			want:      "local",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(silentLog())
			for name, c := range tt.providers {
				reg.Register(name, c)
			}
			resp, err := NewFailover(reg, tt.order[0], tt.order[1:], silentLog()).Complete(context.Background(), CompletionRequest{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Provider)
			assert.Equal(t, "mock response", resp.Content)
			for _, name := range tt.untouched {
				assert.Empty(t, tt.providers[name].Requests(), name)
			}
		})
	}
}

func TestFailover_AllFail(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("a", failing("a", 503))
	reg.Register("b", failing("b", 500))

	_, err := NewFailover(reg, "a", []string{"b"}, silentLog()).Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 503, pe.Code)
	assert.ErrorContains(t, err, "b: 500 down")
}

func TestFailover_NothingConfigured(t *testing.T) {
	f := NewFailover(NewRegistry(silentLog()), "groq", nil, silentLog())
	assert.Equal(t, "groq", f.Name())
	_, err := f.Complete(context.Background(), CompletionRequest{})
	assert.ErrorContains(t, err, "none of")
}

func TestFailover_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewRegistry(silentLog())
	reg.Register("a", &MockClient{ProviderName: "a", CompleteFunc: func(ctx context.Context, _ CompletionRequest) (*CompletionResponse, error) {
		cancel()
		return nil, ctx.Err()
	}})
	backup := &MockClient{ProviderName: "b"}
	reg.Register("b", backup)

	_, err := NewFailover(reg, "a", []string{"b"}, silentLog()).Complete(ctx, CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, backup.Requests())
}

func TestMockClient(t *testing.T) {
	m := &MockClient{ProviderName: "test"}
	for _, sys := range []string{"s", "t"} {
		_, err := m.Complete(context.Background(), CompletionRequest{System: sys})
		require.NoError(t, err)
	}
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "t", reqs[1].System)
}
