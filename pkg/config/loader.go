package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// NotetakerYAMLConfig represents the complete notetaker.yaml file structure.
type NotetakerYAMLConfig struct {
	Defaults    *Defaults           `yaml:"defaults"`
	Calendar    *CalendarConfig     `yaml:"calendar"`
	Scheduler   *SchedulerConfig    `yaml:"scheduler"`
	Supervisor  *SupervisorConfig   `yaml:"supervisor"`
	RateLimiter *RateLimiterConfig  `yaml:"rate_limiter"`
	Chunker     *ChunkerConfig      `yaml:"chunker"`
	Grouping    *GroupingConfig     `yaml:"grouping"`
	Pipeline    *PipelineConfig     `yaml:"pipeline"`
	Notify      *NotifyConfig       `yaml:"notify"`
	Postgres    *PostgresConfig     `yaml:"postgres"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file.
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load notetaker.yaml and llm-providers.yaml from configDir
//  2. Expand environment variables
//  3. Merge user-provided sections over built-in defaults
//  4. Validate all configuration
//  5. Return Config ready for use
func Initialize(ctx context.Context, configDir, stateDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir, stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized successfully", "llm_providers", stats.LLMProviders)

	return cfg, nil
}

func load(_ context.Context, configDir, stateDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadNotetakerYAML()
	if err != nil {
		return nil, NewLoadError("notetaker.yaml", err)
	}

	llmProviders, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}
	llmProvidersMerged := mergeLLMProviders(map[string]LLMProviderConfig{
		"default": *DefaultLLMProviderConfig(),
	}, llmProviders)
	llmRegistry := NewLLMProviderRegistry(llmProvidersMerged)

	defaults := yamlCfg.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	if defaults.LLMProvider == "" {
		defaults.LLMProvider = "default"
	}

	scheduler := DefaultSchedulerConfig()
	if yamlCfg.Scheduler != nil {
		if err := mergo.Merge(scheduler, yamlCfg.Scheduler, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge scheduler config: %w", err)
		}
	}

	supervisor := DefaultSupervisorConfig()
	if yamlCfg.Supervisor != nil {
		if err := mergo.Merge(supervisor, yamlCfg.Supervisor, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge supervisor config: %w", err)
		}
	}

	rateLimiter := DefaultRateLimiterConfig()
	if yamlCfg.RateLimiter != nil {
		if err := mergo.Merge(rateLimiter, yamlCfg.RateLimiter, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge rate limiter config: %w", err)
		}
	}

	chunker := DefaultChunkerConfig()
	if yamlCfg.Chunker != nil {
		if err := mergo.Merge(chunker, yamlCfg.Chunker, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge chunker config: %w", err)
		}
	}

	grouping := DefaultGroupingConfig()
	if yamlCfg.Grouping != nil {
		if err := mergo.Merge(grouping, yamlCfg.Grouping, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge grouping config: %w", err)
		}
	}

	pipeline := DefaultPipelineConfig()
	if yamlCfg.Pipeline != nil {
		if err := mergo.Merge(pipeline, yamlCfg.Pipeline, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge pipeline config: %w", err)
		}
	}

	postgres := DefaultPostgresConfig()
	if yamlCfg.Postgres != nil {
		if err := mergo.Merge(postgres, yamlCfg.Postgres, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge postgres config: %w", err)
		}
	}

	notify := yamlCfg.Notify
	if notify == nil {
		notify = &NotifyConfig{}
	}

	calendar := yamlCfg.Calendar
	if calendar == nil {
		calendar = &CalendarConfig{CalendarID: "primary"}
	}
	if calendar.CalendarID == "" {
		calendar.CalendarID = "primary"
	}

	return &Config{
		configDir:           configDir,
		stateDir:            stateDir,
		Defaults:            defaults,
		Calendar:            calendar,
		Scheduler:           scheduler,
		Supervisor:          supervisor,
		RateLimiter:         rateLimiter,
		Chunker:             chunker,
		Grouping:            grouping,
		Pipeline:            pipeline,
		Notify:              notify,
		Postgres:            postgres,
		LLMProviderRegistry: llmRegistry,
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadNotetakerYAML() (*NotetakerYAMLConfig, error) {
	var cfg NotetakerYAMLConfig

	path := filepath.Join(l.configDir, "notetaker.yaml")
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		// Every section of NotetakerYAMLConfig has a built-in default, so a
		// missing file just means "use defaults for everything".
		return &cfg, nil
	}

	if err := l.loadYAML("notetaker.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]LLMProviderConfig, error) {
	var cfg LLMProvidersYAMLConfig
	cfg.LLMProviders = make(map[string]LLMProviderConfig)

	path := filepath.Join(l.configDir, "llm-providers.yaml")
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return cfg.LLMProviders, nil
	}

	if err := l.loadYAML("llm-providers.yaml", &cfg); err != nil {
		return nil, err
	}
	return cfg.LLMProviders, nil
}
