package config

// Config is the umbrella configuration object returned by Initialize and
// threaded through every component constructor. Nothing below this struct
// reads environment variables or files directly once construction is
// complete — the same design the teacher's Config follows.
type Config struct {
	configDir string
	stateDir  string

	Defaults            *Defaults
	Calendar            *CalendarConfig
	Scheduler           *SchedulerConfig
	Supervisor          *SupervisorConfig
	RateLimiter         *RateLimiterConfig
	Chunker             *ChunkerConfig
	Grouping            *GroupingConfig
	Pipeline            *PipelineConfig
	Notify              *NotifyConfig
	Postgres            *PostgresConfig
	LLMProviderRegistry *LLMProviderRegistry
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// StateDir returns the directory file-backed state (locks, trigger
// records, run results, history) is persisted under.
func (c *Config) StateDir() string {
	return c.stateDir
}

// Stats summarizes loaded configuration for startup logging.
type Stats struct {
	LLMProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{LLMProviders: c.LLMProviderRegistry.Len()}
}

// GetLLMProvider retrieves an LLM provider configuration by name.
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}
