package config

// Defaults contains system-wide default values applied when a more
// specific configuration section doesn't specify its own.
type Defaults struct {
	// LLMProvider names the entry in LLMProviderRegistry used by the
	// Chunk Extractor, Grouping, and Aggregator nodes unless overridden.
	LLMProvider string `yaml:"llm_provider,omitempty"`
}
