package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppliesBuiltinDefaultsWhenFilesMissing(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-key")

	dir := t.TempDir()
	cfg, err := Initialize(context.Background(), dir, filepath.Join(dir, "state"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Defaults.LLMProvider)
	assert.Equal(t, 25, cfg.RateLimiter.RPMLimit)
	assert.Equal(t, 3, cfg.Supervisor.MaxEntryDenials)
	assert.Equal(t, "primary", cfg.Calendar.CalendarID)
}

func TestInitializeMergesUserOverridesOverDefaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "test-key")

	dir := t.TempDir()
	yamlContent := []byte("scheduler:\n  max_results: 10\nsupervisor:\n  max_kicks: 7\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notetaker.yaml"), yamlContent, 0o644))

	cfg, err := Initialize(context.Background(), dir, filepath.Join(dir, "state"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Scheduler.MaxResults)
	assert.Equal(t, 7, cfg.Supervisor.MaxKicks)
	// Unset fields retain built-in defaults.
	assert.Equal(t, 3, cfg.Supervisor.MaxEntryDenials)
}

func TestInitializeFailsWhenDefaultProviderKeyMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(context.Background(), dir, filepath.Join(dir, "state"))
	require.Error(t, err)
}
