package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/logging"
)

// Registry manages completion provider clients and resolves model references.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered completion provider")
}

// Alias maps a model name to a provider, e.g. Alias("llama3.1", "ollama").
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}

	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}

	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no completion provider for model %q", model)
}

// Has reports whether a provider is registered under exactly that name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

// NewRegistryFromConfig builds a Registry from the llm config block.
// Ollama is always registered since it needs no credentials; Claude joins
// when an API key is present. The configured provider becomes the default.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}

	reg.Register("ollama", NewOllamaClient(cfg.Endpoint, model))
	reg.SetFallback("ollama")
	for _, alias := range []string{"llama", "llama3", model} {
		reg.Alias(alias, "ollama")
	}

	if cfg.APIKey != "" {
		claudeModel := cfg.Model
		if strings.ToLower(strings.TrimSpace(cfg.Provider)) != "claude" || claudeModel == "" {
			claudeModel = "claude-sonnet-4-20250514"
		}
		reg.Register("claude", NewClaudeClient(cfg.APIKey, claudeModel))
		for _, alias := range []string{"sonnet", "opus", "haiku"} {
			reg.Alias(alias, "claude")
		}
	}

	if provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); reg.Has(provider) {
		reg.SetFallback(provider)
	}

	return reg
}
