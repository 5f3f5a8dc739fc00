// Command poller runs the Calendar Poller/Scheduler/Notetaker Supervisor
// loop and the Transcript-to-Input pipeline, grounded on
// cmd/tarsy/main.go's wiring order: parse flags, load .env, initialize
// configuration, construct dependencies bottom-up, start long-running
// components, serve HTTP until signalled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"github.com/smartmeet/notetaker/pkg/aggregator"
	"github.com/smartmeet/notetaker/pkg/calendarapi"
	"github.com/smartmeet/notetaker/pkg/chunker"
	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/extractor"
	"github.com/smartmeet/notetaker/pkg/grouping"
	"github.com/smartmeet/notetaker/pkg/harvester"
	"github.com/smartmeet/notetaker/pkg/httpapi"
	"github.com/smartmeet/notetaker/pkg/llm"
	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/notetaker"
	"github.com/smartmeet/notetaker/pkg/notetaker/botapi"
	"github.com/smartmeet/notetaker/pkg/notify"
	"github.com/smartmeet/notetaker/pkg/pipeline"
	"github.com/smartmeet/notetaker/pkg/scheduler"
	"github.com/smartmeet/notetaker/pkg/statestore"
	"github.com/smartmeet/notetaker/pkg/storage"
	"github.com/smartmeet/notetaker/pkg/transcript"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// flags bundles the CLI overrides layered on top of the loaded configuration.
type flags struct {
	configDir       string
	stateDir        string
	calendarID      string
	pollSeconds     int
	lookbackMinutes int
	windowMinutes   int
	dryRun          bool
	disableBot      bool
}

func main() {
	f := flags{}
	flag.StringVar(&f.configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.StringVar(&f.stateDir, "state-dir", getEnv("STATE_DIR", "./deploy/state"), "Path to durable file-backed state directory")
	flag.StringVar(&f.calendarID, "calendar-id", "", "Override the configured calendar ID to poll")
	flag.IntVar(&f.pollSeconds, "poll-seconds", 0, "Override the scheduler's base poll interval, in seconds")
	flag.IntVar(&f.lookbackMinutes, "lookback-minutes", 0, "Override how far behind and ahead of now the poller lists events, in minutes")
	flag.IntVar(&f.windowMinutes, "window-minutes", 0, "Override how long after an event's start it may still be joined, in minutes")
	flag.BoolVar(&f.dryRun, "dry-run", false, "Classify and log eligible meetings without dispatching the notetaker bot")
	flag.BoolVar(&f.disableBot, "disable-bot", false, "Run the scheduler without ever creating a notetaker bot (no harvest or pipeline run is started)")
	flag.Parse()

	if err := godotenv.Load(filepath.Join(f.configDir, ".env")); err != nil {
		log.Printf("warning: could not load .env from %s: %v", f.configDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		log.Fatalf("poller exited: %v", err)
	}
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.Initialize(ctx, f.configDir, f.stateDir)
	if err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}

	if f.calendarID != "" {
		cfg.Calendar.CalendarID = f.calendarID
	}
	if f.pollSeconds > 0 {
		cfg.Scheduler.PollInterval = time.Duration(f.pollSeconds) * time.Second
	}
	if f.lookbackMinutes > 0 {
		cfg.Scheduler.LookaheadWindow = time.Duration(f.lookbackMinutes) * time.Minute
	}
	if f.windowMinutes > 0 {
		cfg.Supervisor.JoinWindowAfter = time.Duration(f.windowMinutes) * time.Minute
	}

	logger := slog.Default()
	logger.Info("notetaker poller starting", "config_dir", f.configDir, "state_dir", f.stateDir,
		"dry_run", f.dryRun, "disable_bot", f.disableBot)

	provider, err := cfg.GetLLMProvider(cfg.Defaults.LLMProvider)
	if err != nil {
		return fmt.Errorf("resolve default llm provider: %w", err)
	}
	apiKey := os.Getenv(provider.APIKeyEnv)
	llmClient := llm.NewOpenAIClient(provider, apiKey)

	var limiter llm.RateLimiter
	if cfg.RateLimiter.UseRedis {
		return fmt.Errorf("redis rate limiter selected but no redis client wiring is provided by this entrypoint")
	}
	limiter = llm.NewWindowLimiter(cfg.RateLimiter.RPMLimit, cfg.RateLimiter.TPMLimit)

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

	sink := notify.NewWebhookSink(cfg.Notify)

	transcriptsDir := filepath.Join(f.stateDir, "transcripts")
	lockStore := statestore.NewActiveLockStore(filepath.Join(f.stateDir, "active_lock.json"), logger)
	triggerStore := statestore.NewTriggerStore(filepath.Join(f.stateDir, "triggers"))
	runResultStore := statestore.NewRunResultStore(filepath.Join(f.stateDir, "runs"))

	tokenSource, err := loadCalendarTokenSource(cfg.Calendar)
	if err != nil {
		return fmt.Errorf("load calendar credentials: %w", err)
	}
	calendar := calendarapi.NewGoogleCalendar(ctx, tokenSource)

	botClient := botapi.NewHTTPClient(getEnv("NOTETAKER_BOT_BASE_URL", ""), os.Getenv("NOTETAKER_BOT_API_KEY"))
	harvest := harvester.New(botClient, runResultStore, transcriptsDir, logger)

	onHarvestComplete := func(hctx context.Context, event models.Event, notetakerIDs []string) {
		harvest.WaitAndSave(hctx, event, notetakerIDs, cfg.Supervisor.PostEndTranscriptWait, cfg.Supervisor.PostEndTranscriptPoll)

		token := event.StartUTC.UTC().Format("20060102T150405Z")
		_, mergedTxt, err := transcript.MergeTranscriptsForMeeting(transcriptsDir, event.EventID, token, false)
		if err != nil {
			logger.Error("failed to merge transcripts", "event_id", event.EventID, "error", err)
			return
		}
		if mergedTxt == "" {
			logger.Info("no transcript fragments to merge", "event_id", event.EventID)
			return
		}

		text, err := os.ReadFile(mergedTxt)
		if err != nil {
			logger.Error("failed to read merged transcript", "event_id", event.EventID, "error", err)
			return
		}

		result, err := pipe.Run(hctx, event.EventID, string(text), mergedTxt)
		if err != nil {
			logger.Error("pipeline run failed", "event_id", event.EventID, "error", err)
			return
		}
		sink.PipelineCompleted(hctx, event.EventID, result.InputCount)
	}

	supervisorFn := func(event models.Event) scheduler.Supervisor {
		if f.dryRun || f.disableBot {
			return dryRunSupervisor{logger: logger, reason: dryRunReason(f)}
		}
		return notetaker.New(cfg.Supervisor, botClient, runResultStore, onHarvestComplete, logger)
	}

	sched := scheduler.New(
		calendar,
		cfg.Calendar.CalendarID,
		supervisorFn,
		triggerStore,
		lockStore,
		runResultStore,
		sink,
		cfg.Scheduler,
		cfg.Supervisor.JoinWindowAfter,
		logger,
	)
	sched.Start(ctx)
	defer sched.Stop()

	server := httpapi.NewServer(runResultStore, lockStore)
	httpServer := &http.Server{Addr: ":" + getEnv("HTTP_PORT", "8080"), Handler: server.Handler()}

	go func() {
		logger.Info("status api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status api server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// dryRunSupervisor satisfies scheduler.Supervisor without ever asking the bot
// provider to join a meeting, for -dry-run and -disable-bot.
type dryRunSupervisor struct {
	logger *slog.Logger
	reason string
}

func dryRunReason(f flags) string {
	if f.dryRun {
		return "dry-run"
	}
	return "disable-bot"
}

func (d dryRunSupervisor) Supervise(ctx context.Context, event models.Event) models.MeetingRunResult {
	now := time.Now().UTC()
	d.logger.Info("would dispatch notetaker", "event_id", event.EventID, "reason", d.reason)
	return models.MeetingRunResult{
		EventID:       event.EventID,
		EventStartUTC: event.StartUTC,
		OK:            true,
		Reason:        d.reason,
		StartedAtUTC:  now,
		EndedAtUTC:    now,
	}
}

// calendarTokenFile is the on-disk shape of a previously-obtained OAuth2
// refresh token. Interactive OAuth onboarding is out of scope; this
// entrypoint only ever refreshes a token that already exists.
type calendarTokenFile struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	TokenURI     string `json:"token_uri"`
}

func loadCalendarTokenSource(cfg *config.CalendarConfig) (oauth2.TokenSource, error) {
	tokenPath := os.Getenv(cfg.TokenFileEnv)
	if tokenPath == "" {
		return nil, fmt.Errorf("%s is not set", cfg.TokenFileEnv)
	}
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read calendar token file: %w", err)
	}
	var tok calendarTokenFile
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse calendar token file: %w", err)
	}
	tokenURI := tok.TokenURI
	if tokenURI == "" {
		tokenURI = "https://oauth2.googleapis.com/token"
	}
	oauthCfg := &oauth2.Config{
		ClientID:     tok.ClientID,
		ClientSecret: tok.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURI},
	}
	return oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: tok.RefreshToken}), nil
}
