// Command mergetranscript merges a meeting's transcript fragments and runs
// the Transcript-to-Input pipeline over the result, for backfilling a
// meeting whose automatic post-end merge was missed or needs a forced
// re-run. Grounded on cmd/tarsy/main.go's flag-parsing entrypoint shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/smartmeet/notetaker/pkg/aggregator"
	"github.com/smartmeet/notetaker/pkg/chunker"
	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/extractor"
	"github.com/smartmeet/notetaker/pkg/grouping"
	"github.com/smartmeet/notetaker/pkg/llm"
	"github.com/smartmeet/notetaker/pkg/pipeline"
	"github.com/smartmeet/notetaker/pkg/storage"
	"github.com/smartmeet/notetaker/pkg/transcript"
)

func main() {
	configDir := flag.String("config-dir", "./deploy/config", "Path to configuration directory")
	stateDir := flag.String("state-dir", "./deploy/state", "Path to durable file-backed state directory")
	eventID := flag.String("event-id", "", "Calendar event ID to merge and process")
	eventStart := flag.String("event-start", "", "Event start token, formatted 20060102T150405Z")
	force := flag.Bool("force", false, "Re-merge transcript fragments even if a MERGED output already exists")
	flag.Parse()

	if *eventID == "" || *eventStart == "" {
		log.Fatal("both -event-id and -event-start are required")
	}

	ctx := context.Background()
	if err := run(ctx, *configDir, *stateDir, *eventID, *eventStart, *force); err != nil {
		log.Fatalf("mergetranscript failed: %v", err)
	}
}

func run(ctx context.Context, configDir, stateDir, eventID, eventStart string, force bool) error {
	cfg, err := config.Initialize(ctx, configDir, stateDir)
	if err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}
	logger := slog.Default()

	transcriptsDir := stateDir + "/transcripts"
	_, mergedTxt, err := transcript.MergeTranscriptsForMeeting(transcriptsDir, eventID, eventStart, force)
	if err != nil {
		return fmt.Errorf("merge transcripts: %w", err)
	}
	if mergedTxt == "" {
		logger.Info("no transcript fragments found for this occurrence", "event_id", eventID, "event_start", eventStart)
		return nil
	}

	text, err := os.ReadFile(mergedTxt)
	if err != nil {
		return fmt.Errorf("read merged transcript: %w", err)
	}

	provider, err := cfg.GetLLMProvider(cfg.Defaults.LLMProvider)
	if err != nil {
		return fmt.Errorf("resolve default llm provider: %w", err)
	}
	llmClient := llm.NewOpenAIClient(provider, os.Getenv(provider.APIKeyEnv))
	limiter := llm.NewWindowLimiter(cfg.RateLimiter.RPMLimit, cfg.RateLimiter.TPMLimit)

	store, err := storage.Open(ctx, cfg.Postgres, os.Getenv(cfg.Postgres.PasswordEnv))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	pipe := pipeline.New(
		chunker.New(cfg.Chunker),
		extractor.New(llmClient, limiter, provider, "chunk_extractor"),
		grouping.New(llmClient, limiter, provider, cfg.Grouping),
		aggregator.New(llmClient, limiter, provider),
		store,
		cfg.Pipeline,
		logger,
	)

	result, err := pipe.Run(ctx, eventID, string(text), mergedTxt)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("pipeline run complete",
		"event_id", eventID, "chunks", result.ChunkCount, "facts", result.FactCount, "inputs", result.InputCount)
	return nil
}
