package grouping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/llm"
	"github.com/smartmeet/notetaker/pkg/models"
)

type scriptedClient struct {
	replies []string
	calls   int
}

func (s *scriptedClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	reply := s.replies[s.calls]
	s.calls++
	return &llm.CompletionResult{Content: reply}, nil
}

type noopLimiter struct{}

func (noopLimiter) Acquire(ctx context.Context, estTokens int) error { return nil }

func facts(n int) []models.ExtractedFact {
	out := make([]models.ExtractedFact, n)
	for i := range out {
		out[i] = models.ExtractedFact{
			ID:          "fact-" + string(rune('a'+i)),
			FactType:    models.FactStatement,
			FactContent: "content",
		}
	}
	return out
}

func TestLabelFactsAssignsLabelsFromLLM(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"labels":[{"i":0,"group_label":"Action Items"},{"i":1,"group_label":"decisions"}]}`,
	}}
	g := New(client, noopLimiter{}, &config.LLMProviderConfig{Model: "m", MaxOutputTokens: 100}, config.DefaultGroupingConfig())

	out, err := g.LabelFacts(context.Background(), "meeting-1", facts(2))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].GroupLabel)
	assert.Equal(t, "action_items", *out[0].GroupLabel)
	assert.Equal(t, "decisions", *out[1].GroupLabel)
}

func TestLabelFactsDefaultsMissingIndices(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"labels":[{"i":0,"group_label":"risks"}]}`,
	}}
	g := New(client, noopLimiter{}, &config.LLMProviderConfig{Model: "m", MaxOutputTokens: 100}, config.DefaultGroupingConfig())

	out, err := g.LabelFacts(context.Background(), "meeting-1", facts(2))
	require.NoError(t, err)
	require.NotNil(t, out[1].GroupLabel)
	assert.Equal(t, "ungrouped", *out[1].GroupLabel)
}

func TestLabelFactsBatchesAcrossMultipleCalls(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"labels":[{"i":0,"group_label":"a"}]}`,
		`{"labels":[{"i":0,"group_label":"b"}]}`,
	}}
	cfg := &config.GroupingConfig{DefaultLabel: "ungrouped", MaxFactsPerCall: 1}
	g := New(client, noopLimiter{}, &config.LLMProviderConfig{Model: "m", MaxOutputTokens: 100}, cfg)

	out, err := g.LabelFacts(context.Background(), "meeting-1", facts(2))
	require.NoError(t, err)
	require.Equal(t, 2, client.calls)
	assert.Equal(t, "a", *out[0].GroupLabel)
	assert.Equal(t, "b", *out[1].GroupLabel)
}

func TestNormalizeGroupLabelStripsDisallowedCharsAndTruncates(t *testing.T) {
	assert.Equal(t, "hello_world", normalizeGroupLabel("  Hello   World!! ", "ungrouped"))
	assert.Equal(t, "ungrouped", normalizeGroupLabel("", "ungrouped"))
	assert.Equal(t, "ungrouped", normalizeGroupLabel("___", "ungrouped"))

	long := normalizeGroupLabel(stringsRepeat("a", 150), "ungrouped")
	assert.Len(t, long, 100)
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}
