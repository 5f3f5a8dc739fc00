package config

import "time"

// SchedulerConfig controls the Calendar Poller / Scheduler cooperative poll
// loop (spec §4.3, §4.4).
type SchedulerConfig struct {
	// PollInterval is the base interval between calendar poll ticks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the largest random offset, in either direction,
	// applied to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// LookaheadWindow is how far behind and how far ahead of now the poller
	// lists events.
	LookaheadWindow time.Duration `yaml:"lookahead_window"`

	// TriggerBefore is how close to an event's start time the Scheduler
	// must be before it is eligible to dispatch a Notetaker.
	TriggerBefore time.Duration `yaml:"trigger_before"`

	// MaxResults bounds how many events are fetched per poll.
	MaxResults int `yaml:"max_results"`
}

// DefaultSchedulerConfig returns the built-in scheduler defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:       30 * time.Second,
		PollIntervalJitter: 5 * time.Second,
		LookaheadWindow:    120 * time.Minute,
		TriggerBefore:      2 * time.Minute,
		MaxResults:         25,
	}
}
