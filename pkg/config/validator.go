package config

import (
	"fmt"
	"os"
)

// Validator validates configuration comprehensively with clear error
// messages, fail-fast on the first problem found.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation.
func (v *Validator) ValidateAll() error {
	if err := v.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}
	if err := v.validateSupervisor(); err != nil {
		return fmt.Errorf("supervisor validation failed: %w", err)
	}
	if err := v.validateRateLimiter(); err != nil {
		return fmt.Errorf("rate limiter validation failed: %w", err)
	}
	if err := v.validateChunker(); err != nil {
		return fmt.Errorf("chunker validation failed: %w", err)
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	if err := v.validateNotify(); err != nil {
		return fmt.Errorf("notify validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateScheduler() error {
	s := v.cfg.Scheduler
	if s == nil {
		return fmt.Errorf("scheduler configuration is nil")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", s.PollInterval)
	}
	if s.PollIntervalJitter < 0 || s.PollIntervalJitter >= s.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be in [0, poll_interval), got jitter=%v interval=%v", s.PollIntervalJitter, s.PollInterval)
	}
	if s.LookaheadWindow <= 0 {
		return fmt.Errorf("lookahead_window must be positive, got %v", s.LookaheadWindow)
	}
	if s.TriggerBefore <= 0 || s.TriggerBefore > s.LookaheadWindow {
		return fmt.Errorf("trigger_before must be positive and not exceed lookahead_window, got %v", s.TriggerBefore)
	}
	if s.MaxResults < 1 {
		return fmt.Errorf("max_results must be at least 1, got %d", s.MaxResults)
	}
	return nil
}

func (v *Validator) validateSupervisor() error {
	s := v.cfg.Supervisor
	if s == nil {
		return fmt.Errorf("supervisor configuration is nil")
	}
	if s.MaxEntryDenials < 1 {
		return fmt.Errorf("max_entry_denials must be at least 1, got %d", s.MaxEntryDenials)
	}
	if s.MaxKicks < 1 {
		return fmt.Errorf("max_kicks must be at least 1, got %d", s.MaxKicks)
	}
	if s.JoinRetryMin <= 0 || s.JoinRetryMax < s.JoinRetryMin {
		return fmt.Errorf("join_retry_min must be positive and join_retry_max must not be less than it, got min=%v max=%v", s.JoinRetryMin, s.JoinRetryMax)
	}
	if s.StatusPoll <= 0 {
		return fmt.Errorf("status_poll must be positive, got %v", s.StatusPoll)
	}
	if s.MaxOverrun <= 0 {
		return fmt.Errorf("max_overrun must be positive, got %v", s.MaxOverrun)
	}
	if s.EventEndGrace <= 0 {
		return fmt.Errorf("event_end_grace must be positive, got %v", s.EventEndGrace)
	}
	return nil
}

func (v *Validator) validateRateLimiter() error {
	r := v.cfg.RateLimiter
	if r == nil {
		return fmt.Errorf("rate limiter configuration is nil")
	}
	if r.RPMLimit < 1 {
		return fmt.Errorf("rpm_limit must be at least 1, got %d", r.RPMLimit)
	}
	if r.TPMLimit < 1 {
		return fmt.Errorf("tpm_limit must be at least 1, got %d", r.TPMLimit)
	}
	if r.UseRedis && r.RedisAddr == "" {
		return fmt.Errorf("redis_addr required when use_redis is true")
	}
	return nil
}

func (v *Validator) validateChunker() error {
	c := v.cfg.Chunker
	if c == nil {
		return fmt.Errorf("chunker configuration is nil")
	}
	if c.MaxChars < 1 {
		return fmt.Errorf("max_chars must be at least 1, got %d", c.MaxChars)
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChars {
		return fmt.Errorf("overlap_chars must be in [0, max_chars), got overlap=%d max_chars=%d", c.OverlapChars, c.MaxChars)
	}
	return nil
}

func (v *Validator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if provider.Model == "" {
			return NewValidationError("llm_provider:"+name, "model", fmt.Errorf("required"))
		}
		if provider.APIKeyEnv == "" {
			return NewValidationError("llm_provider:"+name, "api_key_env", fmt.Errorf("required"))
		}
		if name == v.cfg.Defaults.LLMProvider {
			if value := os.Getenv(provider.APIKeyEnv); value == "" {
				return NewValidationError("llm_provider:"+name, "api_key_env", fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv))
			}
		}
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	if v.cfg.Defaults.LLMProvider == "" {
		return fmt.Errorf("defaults.llm_provider must not be empty")
	}
	if !v.cfg.LLMProviderRegistry.Has(v.cfg.Defaults.LLMProvider) {
		return NewValidationError("defaults", "llm_provider", fmt.Errorf("provider '%s' not found", v.cfg.Defaults.LLMProvider))
	}
	return nil
}

func (v *Validator) validateNotify() error {
	n := v.cfg.Notify
	if n == nil || !n.Enabled {
		return nil
	}
	if n.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required when notify is enabled")
	}
	return nil
}
