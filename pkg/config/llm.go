package config

import (
	"fmt"
	"sync"
	"time"
)

// LLMProviderConfig defines one OpenAI-compatible LLM provider endpoint
// shared by the Chunk Extractor, Grouping, and Aggregator nodes.
type LLMProviderConfig struct {
	Model     string `yaml:"model" validate:"required"`
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	BaseURL   string `yaml:"base_url,omitempty"`

	Timeout         time.Duration `yaml:"timeout"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
}

// DefaultLLMProviderConfig returns the built-in LLM provider defaults,
// overridden by whatever the loaded YAML specifies.
func DefaultLLMProviderConfig() *LLMProviderConfig {
	return &LLMProviderConfig{
		Model:           "llama-3.1-8b-instant",
		APIKeyEnv:       "GROQ_API_KEY",
		BaseURL:         "https://api.groq.com/openai/v1",
		Timeout:         60 * time.Second,
		MaxOutputTokens: 400,
		Temperature:     0.2,
	}
}

// LLMProviderRegistry stores named LLM provider configurations in memory
// with thread-safe access, matching the teacher's registry conventions.
type LLMProviderRegistry struct {
	providers map[string]*LLMProviderConfig
	mu        sync.RWMutex
}

// NewLLMProviderRegistry creates a new LLM provider registry from a
// defensive copy of providers.
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig) *LLMProviderRegistry {
	copied := make(map[string]*LLMProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &LLMProviderRegistry{providers: copied}
}

// Get retrieves an LLM provider configuration by name.
func (r *LLMProviderRegistry) Get(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, name)
	}
	return provider, nil
}

// GetAll returns a copy of all LLM provider configurations.
func (r *LLMProviderRegistry) GetAll() map[string]*LLMProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*LLMProviderConfig, len(r.providers))
	for k, v := range r.providers {
		result[k] = v
	}
	return result
}

// Has reports whether an LLM provider exists in the registry.
func (r *LLMProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.providers[name]
	return exists
}

// Len returns the number of LLM providers in the registry.
func (r *LLMProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
