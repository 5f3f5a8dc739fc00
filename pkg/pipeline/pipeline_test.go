package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/aggregator"
	"github.com/smartmeet/notetaker/pkg/chunker"
	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/extractor"
	"github.com/smartmeet/notetaker/pkg/grouping"
	"github.com/smartmeet/notetaker/pkg/llm"
	"github.com/smartmeet/notetaker/pkg/models"
)

type fakeStore struct {
	mu     sync.Mutex
	chunks []models.TranscriptChunk
	facts  []models.ExtractedFact
	inputs []models.Input
}

func (s *fakeStore) InsertTranscriptChunks(ctx context.Context, chunks []models.TranscriptChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *fakeStore) InsertExtractedFacts(ctx context.Context, facts []models.ExtractedFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, facts...)
	return nil
}

func (s *fakeStore) UngroupedFacts(ctx context.Context, meetingID string) ([]models.ExtractedFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ExtractedFact
	for _, f := range s.facts {
		if f.MeetingID == meetingID && f.GroupLabel == nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateFactGroupLabels(ctx context.Context, facts []models.ExtractedFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]*string, len(facts))
	for _, f := range facts {
		byID[f.ID] = f.GroupLabel
	}
	for i := range s.facts {
		if label, ok := byID[s.facts[i].ID]; ok {
			s.facts[i].GroupLabel = label
		}
	}
	return nil
}

func (s *fakeStore) FactsByMeeting(ctx context.Context, meetingID string) ([]models.ExtractedFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ExtractedFact
	for _, f := range s.facts {
		if f.MeetingID == meetingID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertInputs(ctx context.Context, inputs []models.Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, inputs...)
	return nil
}

type noopLimiter struct{}

func (noopLimiter) Acquire(ctx context.Context, estTokens int) error { return nil }

// scriptedExtractorClient always calls record_facts with one decision fact
// per chunk, so each produced chunk yields exactly one extracted fact.
type scriptedExtractorClient struct{}

func (scriptedExtractorClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return &llm.CompletionResult{
		ToolCalls: []llm.ToolCall{{
			Name:      "record_facts",
			Arguments: `{"facts":[{"fact_type":"decision","fact_content":"a decision","certainty":80}]}`,
		}},
	}, nil
}

type scriptedGroupingClient struct{}

func (scriptedGroupingClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return &llm.CompletionResult{Content: `{"labels":[{"i":0,"group_label":"decisions"}]}`}, nil
}

type scriptedAggregatorClient struct{}

func (scriptedAggregatorClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return &llm.CompletionResult{Content: `{"input_content":"Synthesized summary."}`}, nil
}

func TestPipelineRunProducesInputsFromTranscript(t *testing.T) {
	provider := &config.LLMProviderConfig{Model: "m", MaxOutputTokens: 200}

	c := chunker.New(&config.ChunkerConfig{MaxChars: 2000, OverlapChars: 200})
	e := extractor.New(scriptedExtractorClient{}, noopLimiter{}, provider, "default")
	g := grouping.New(scriptedGroupingClient{}, noopLimiter{}, provider, config.DefaultGroupingConfig())
	a := aggregator.New(scriptedAggregatorClient{}, noopLimiter{}, provider)
	store := &fakeStore{}

	p := New(c, e, g, a, store, config.DefaultPipelineConfig(), nil)

	result, err := p.Run(context.Background(), "meeting-1", "Alice: let's ship the release on Friday.", "merged")
	require.NoError(t, err)

	assert.Equal(t, "meeting-1", result.MeetingID)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Equal(t, 1, result.FactCount)
	assert.Equal(t, 1, result.InputCount)
	require.Len(t, store.inputs, 1)
	assert.Equal(t, "decisions", store.inputs[0].GroupLabel)
	assert.Equal(t, "Synthesized summary.", store.inputs[0].InputContent)
}

func TestPipelineRunReturnsEmptyResultForEmptyTranscript(t *testing.T) {
	provider := &config.LLMProviderConfig{Model: "m", MaxOutputTokens: 200}
	c := chunker.New(&config.ChunkerConfig{MaxChars: 2000, OverlapChars: 200})
	e := extractor.New(scriptedExtractorClient{}, noopLimiter{}, provider, "default")
	g := grouping.New(scriptedGroupingClient{}, noopLimiter{}, provider, config.DefaultGroupingConfig())
	a := aggregator.New(scriptedAggregatorClient{}, noopLimiter{}, provider)
	store := &fakeStore{}

	p := New(c, e, g, a, store, config.DefaultPipelineConfig(), nil)
	result, err := p.Run(context.Background(), "meeting-1", "   \n\n  ", "merged")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ChunkCount)
	assert.Empty(t, store.chunks)
}
