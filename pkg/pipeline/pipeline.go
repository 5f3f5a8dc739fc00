package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/smartmeet/notetaker/pkg/aggregator"
	"github.com/smartmeet/notetaker/pkg/chunker"
	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/extractor"
	"github.com/smartmeet/notetaker/pkg/grouping"
	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/storage"
)

// Store is the subset of *storage.Store the pipeline depends on, narrowed
// for testability.
type Store interface {
	InsertTranscriptChunks(ctx context.Context, chunks []models.TranscriptChunk) error
	InsertExtractedFacts(ctx context.Context, facts []models.ExtractedFact) error
	UngroupedFacts(ctx context.Context, meetingID string) ([]models.ExtractedFact, error)
	UpdateFactGroupLabels(ctx context.Context, facts []models.ExtractedFact) error
	FactsByMeeting(ctx context.Context, meetingID string) ([]models.ExtractedFact, error)
	InsertInputs(ctx context.Context, inputs []models.Input) error
}

var _ Store = (*storage.Store)(nil)

// Result summarizes one Run invocation for logging/status reporting.
type Result struct {
	MeetingID  string
	ChunkCount int
	FactCount  int
	InputCount int
}

// Pipeline wires the Smart Chunker, Chunk Extractor Node, Grouping Node,
// and Aggregator Router+Node into one end-to-end run over a meeting's
// merged transcript text.
type Pipeline struct {
	chunker    *chunker.Chunker
	extractor  *extractor.Extractor
	grouper    *grouping.Grouper
	aggregator *aggregator.Aggregator
	store      Store
	cfg        *config.PipelineConfig
	log        *slog.Logger
}

// New wires a Pipeline from its stage components.
func New(c *chunker.Chunker, e *extractor.Extractor, g *grouping.Grouper, a *aggregator.Aggregator, store Store, cfg *config.PipelineConfig, log *slog.Logger) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{chunker: c, extractor: e, grouper: g, aggregator: a, store: store, cfg: cfg, log: log}
}

// Run chunks transcriptText, extracts facts, labels them, and aggregates
// each group into a synthesized Input, persisting at every stage so the
// run can be resumed from storage if it's interrupted partway through.
func (p *Pipeline) Run(ctx context.Context, meetingID, transcriptText, source string) (*Result, error) {
	chunks := p.chunker.Chunk(transcriptText, meetingID, source)
	if len(chunks) == 0 {
		return &Result{MeetingID: meetingID}, nil
	}
	if err := p.store.InsertTranscriptChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("pipeline: persist chunks: %w", err)
	}

	facts, err := p.extractAll(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("pipeline: extract: %w", err)
	}
	if len(facts) > 0 {
		if err := p.store.InsertExtractedFacts(ctx, facts); err != nil {
			return nil, fmt.Errorf("pipeline: persist facts: %w", err)
		}
	}

	if err := p.labelUngroupedFacts(ctx, meetingID); err != nil {
		return nil, fmt.Errorf("pipeline: group: %w", err)
	}

	inputs, err := p.aggregateGroups(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: aggregate: %w", err)
	}
	if len(inputs) > 0 {
		if err := p.store.InsertInputs(ctx, inputs); err != nil {
			return nil, fmt.Errorf("pipeline: persist inputs: %w", err)
		}
	}

	return &Result{
		MeetingID:  meetingID,
		ChunkCount: len(chunks),
		FactCount:  len(facts),
		InputCount: len(inputs),
	}, nil
}

// extractAll runs the Chunk Extractor Node over every chunk with bounded
// concurrency (spec §4.9: "parallel with bounded worker count, default
// 4"). A single chunk's extraction failure is logged and yields zero
// facts for that chunk rather than aborting the whole meeting (spec §4.9:
// "facts get persisted or the chunk is recorded as yielding zero facts,
// never a crash").
func (p *Pipeline) extractAll(ctx context.Context, chunks []models.TranscriptChunk) ([]models.ExtractedFact, error) {
	results, errs := runBounded(ctx, chunks, p.cfg.ExtractWorkers, func(ctx context.Context, c models.TranscriptChunk) (*extractor.Result, error) {
		return p.extractor.Extract(ctx, c)
	})

	var facts []models.ExtractedFact
	for i, r := range results {
		if errs[i] != nil {
			p.log.Error("chunk extraction failed, recording zero facts for chunk", "chunk_id", chunks[i].ID, "error", errs[i])
			continue
		}
		if r != nil {
			facts = append(facts, r.Facts...)
		}
	}
	return facts, nil
}

// labelUngroupedFacts runs the Grouping Node over every fact for
// meetingID still missing a group_label (spec §4.10: idempotent, skips
// already-labeled facts).
func (p *Pipeline) labelUngroupedFacts(ctx context.Context, meetingID string) error {
	ungrouped, err := p.store.UngroupedFacts(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("fetch ungrouped facts: %w", err)
	}
	if len(ungrouped) == 0 {
		return nil
	}
	labeled, err := p.grouper.LabelFacts(ctx, meetingID, ungrouped)
	if err != nil {
		return fmt.Errorf("label facts: %w", err)
	}
	return p.store.UpdateFactGroupLabels(ctx, labeled)
}

// aggregateGroups runs the Aggregator Router (partition by group_label)
// then the Aggregator Node (one LLM call per group) with bounded
// concurrency, returning Input rows ordered by group_label (spec §4.11).
func (p *Pipeline) aggregateGroups(ctx context.Context, meetingID string) ([]models.Input, error) {
	all, err := p.store.FactsByMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("fetch facts: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}

	groups := aggregator.RouteByGroupLabel(all, p.grouper.DefaultLabel())
	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	results, errs := runBounded(ctx, labels, p.cfg.AggregateWorkers, func(ctx context.Context, label string) (*models.Input, error) {
		return p.aggregator.AggregateGroup(ctx, meetingID, label, groups[label])
	})

	inputs := make([]models.Input, 0, len(labels))
	for i, r := range results {
		if errs[i] != nil {
			p.log.Error("group aggregation failed, skipping group", "group_label", labels[i], "error", errs[i])
			continue
		}
		if r != nil {
			inputs = append(inputs, *r)
		}
	}
	return inputs, nil
}
