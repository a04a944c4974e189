package llm

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/logging"
)

// Registry holds the usable providers by name.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	log     *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{clients: make(map[string]Client), log: log.Sub("llm")}
}

func (r *Registry) Register(name string, c Client) {
	r.mu.Lock()
	r.clients[name] = c
	r.mu.Unlock()
	r.log.Debug().Str("provider", name).Msg("provider registered")
}

func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.clients))
}

// NewClient builds a client for one configured provider. API picks the
// wire format; several hosted services speak the openai one.
func NewClient(name string, p config.ProviderEntry) (Client, error) {
	switch p.API {
	case "openai":
		return NewOpenAIClient(name, p.BaseURL, p.APIKey, p.Model), nil
	case "claude":
		return NewClaudeAPIClient(name, p.BaseURL, p.APIKey, p.Model), nil
	case "gemini":
		return NewGeminiAPIClient(name, p.BaseURL, p.APIKey, p.Model), nil
	case "ollama":
		return NewOllamaAPIClient(name, p.BaseURL, p.Model), nil
	default:
		return nil, fmt.Errorf("llm: provider %q has unknown api %q", name, p.API)
	}
}

// NewRegistryFromConfig registers each configured provider whose API key
// resolved. Ollama runs locally and needs none.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)
	for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
		p := cfg.Providers[name]
		if p.API != "ollama" && config.Unresolved(p.APIKey) {
			reg.log.Warn().Str("provider", name).Msg("no API key, provider disabled")
			continue
		}
		c, err := NewClient(name, p)
		if err != nil {
			return nil, err
		}
		reg.Register(name, c)
	}
	return reg, nil
}
