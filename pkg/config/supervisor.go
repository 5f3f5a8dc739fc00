package config

import "time"

// SupervisorConfig controls the Notetaker Supervisor state machine
// (spec §4.5). Defaults mirror the constants the system was distilled
// from: join-window sizing, denial/kick caps, rejoin cadence, overrun and
// grace periods, and post-meeting transcript wait bounds.
type SupervisorConfig struct {
	JoinWindowBefore time.Duration `yaml:"join_window_before"`
	JoinWindowAfter  time.Duration `yaml:"join_window_after"`

	MaxEntryDenials int `yaml:"max_entry_denials"`
	MaxKicks        int `yaml:"max_kicks"`

	JoinRetryMin time.Duration `yaml:"join_retry_min"`
	JoinRetryMax time.Duration `yaml:"join_retry_max"`

	WaitingRoomTimeout time.Duration `yaml:"waiting_room_timeout"`

	ReconnectAttemptInterval time.Duration `yaml:"reconnect_attempt_interval"`

	MaxOverrun      time.Duration `yaml:"max_overrun"`
	EventEndGrace   time.Duration `yaml:"event_end_grace"`
	StatusPoll      time.Duration `yaml:"status_poll"`

	PostEndTranscriptWait time.Duration `yaml:"post_end_transcript_wait"`
	PostEndTranscriptPoll time.Duration `yaml:"post_end_transcript_poll"`
}

// DefaultSupervisorConfig returns the built-in supervisor defaults.
func DefaultSupervisorConfig() *SupervisorConfig {
	return &SupervisorConfig{
		JoinWindowBefore:         2 * time.Minute,
		JoinWindowAfter:          15 * time.Minute,
		MaxEntryDenials:          3,
		MaxKicks:                 3,
		JoinRetryMin:             30 * time.Second,
		JoinRetryMax:             60 * time.Second,
		WaitingRoomTimeout:       300 * time.Second,
		ReconnectAttemptInterval: 30 * time.Second,
		MaxOverrun:               1800 * time.Second,
		EventEndGrace:            900 * time.Second,
		StatusPoll:               15 * time.Second,
		PostEndTranscriptWait:    1200 * time.Second,
		PostEndTranscriptPoll:    20 * time.Second,
	}
}

// NotifyConfig controls the out-of-band NotificationSink (spec §9 design
// note; Discord/Notion modeled as one generic webhook sink).
type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// CalendarConfig controls the calendar provider client.
type CalendarConfig struct {
	CalendarID     string `yaml:"calendar_id"`
	ClientSecretEnv string `yaml:"client_secret_env,omitempty"`
	TokenFileEnv   string `yaml:"token_file_env,omitempty"`
}

// PostgresConfig controls the pipeline's relational store connection.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	PasswordEnv     string        `yaml:"password_env,omitempty"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultPostgresConfig returns sane pool-sizing defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// RateLimiterConfig controls the LLM rate limiter (spec §4.12).
type RateLimiterConfig struct {
	RPMLimit int `yaml:"rpm_limit"`
	TPMLimit int `yaml:"tpm_limit"`

	// UseRedis selects the distributed RedisWindowCounter backend instead
	// of the default in-process sliding window (SPEC_FULL.md §4.12).
	UseRedis bool   `yaml:"use_redis"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

// DefaultRateLimiterConfig returns the built-in rate limiter defaults.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{RPMLimit: 25, TPMLimit: 6000}
}

// ChunkerConfig controls the Smart Chunker (spec §4.8).
type ChunkerConfig struct {
	MaxChars     int `yaml:"max_chars"`
	OverlapChars int `yaml:"overlap_chars"`
}

// DefaultChunkerConfig returns the built-in chunker defaults.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{MaxChars: 2000, OverlapChars: 200}
}

// GroupingConfig controls the Grouping Node (spec §4.10).
type GroupingConfig struct {
	DefaultLabel    string `yaml:"default_label"`
	MaxFactsPerCall int    `yaml:"max_facts_per_call"`
}

// PipelineConfig controls the bounded-concurrency fan-out stages of the
// Transcript-to-Input pipeline (spec §4.9, §4.11, §5).
type PipelineConfig struct {
	ExtractWorkers   int `yaml:"extract_workers"`
	AggregateWorkers int `yaml:"aggregate_workers"`
}

// DefaultPipelineConfig returns the built-in worker-count defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{ExtractWorkers: 4, AggregateWorkers: 4}
}

// DefaultGroupingConfig returns the built-in grouping defaults.
func DefaultGroupingConfig() *GroupingConfig {
	return &GroupingConfig{DefaultLabel: "ungrouped", MaxFactsPerCall: 30}
}
