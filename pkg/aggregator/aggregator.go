// Package aggregator implements the Aggregator Router and Aggregator LLM
// Node: grouping facts by label and synthesizing each group into a single
// resolved Input, grounded on
// original_source/agents/aggregator_router.py and
// original_source/agents/aggregator_llm_node.py.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/llm"
	"github.com/smartmeet/notetaker/pkg/models"
)

const defaultGroupLabel = "ungrouped"

// RouteByGroupLabel is the Aggregator Router: it partitions facts into one
// bucket per group_label, preserving each fact's original order within its
// bucket. Facts with a nil or empty GroupLabel fall into defaultLabel.
func RouteByGroupLabel(facts []models.ExtractedFact, defaultLabel string) map[string][]models.ExtractedFact {
	if defaultLabel == "" {
		defaultLabel = defaultGroupLabel
	}
	groups := make(map[string][]models.ExtractedFact)
	for _, f := range facts {
		label := defaultLabel
		if f.GroupLabel != nil && strings.TrimSpace(*f.GroupLabel) != "" {
			label = *f.GroupLabel
		}
		groups[label] = append(groups[label], f)
	}
	return groups
}

const systemPrompt = "You are a meeting synthesis system. " +
	"Given extracted facts of a single theme/group, produce a clean, conflict-resolved summary. " +
	"Return ONLY valid JSON."

// Aggregator is the Aggregator LLM Node: one call per group, synthesizing
// that group's facts into a single Input row.
type Aggregator struct {
	client   llm.Client
	limiter  llm.RateLimiter
	provider *config.LLMProviderConfig
}

// New returns an Aggregator using client/limiter/provider for completions.
func New(client llm.Client, limiter llm.RateLimiter, provider *config.LLMProviderConfig) *Aggregator {
	return &Aggregator{client: client, limiter: limiter, provider: provider}
}

type factItem struct {
	FactType    string `json:"fact_type"`
	Speaker     string `json:"speaker"`
	Certainty   int    `json:"certainty"`
	FactContent string `json:"fact_content"`
}

type synthesisEnvelope struct {
	InputContent string `json:"input_content"`
}

// AggregateGroup synthesizes facts (all sharing groupLabel) into a single
// models.Input. Facts belonging to a different group than groupLabel are
// not re-checked; callers are expected to pass the output of
// RouteByGroupLabel.
func (a *Aggregator) AggregateGroup(ctx context.Context, meetingID, groupLabel string, facts []models.ExtractedFact) (*models.Input, error) {
	items := make([]factItem, len(facts))
	for i, f := range facts {
		items[i] = factItem{FactType: string(f.FactType), Speaker: f.Speaker, Certainty: f.Certainty, FactContent: f.FactContent}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("aggregator: marshal facts: %w", err)
	}

	userPrompt := "Synthesize the following meeting facts into a single resolved input_content.\n" +
		"Rules:\n" +
		"- Remove duplicates and near-duplicates.\n" +
		"- Resolve conflicts: if facts contradict, prefer the higher certainty or phrase uncertainty explicitly.\n" +
		"- Keep it actionable and concise.\n" +
		"- Use bullet points when it improves clarity.\n" +
		"- Do not invent details not present in the facts.\n\n" +
		"meeting_id: " + meetingID + "\n" +
		"group_label: " + groupLabel + "\n" +
		"facts: " + string(itemsJSON) + "\n\n" +
		`Return JSON matching this shape: {"input_content":"string"}`

	estTokens := llm.EstimateTokens(systemPrompt + userPrompt)
	if err := a.limiter.Acquire(ctx, estTokens); err != nil {
		return nil, fmt.Errorf("aggregator: rate limiter: %w", err)
	}

	req := llm.CompletionRequest{
		Model:           a.provider.Model,
		Temperature:     0.2,
		MaxOutputTokens: a.provider.MaxOutputTokens,
		JSONObject:      true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
	}

	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("aggregator: completion: %w", err)
	}

	content := strings.TrimSpace(resp.Content)
	var env synthesisEnvelope
	if content != "" {
		if err := json.Unmarshal([]byte(extractJSONObject(content)), &env); err != nil {
			return nil, fmt.Errorf("aggregator: parsing synthesis JSON: %w", err)
		}
	}

	return &models.Input{
		ID:           uuid.NewString(),
		MeetingID:    meetingID,
		GroupLabel:   groupLabel,
		InputContent: strings.TrimSpace(env.InputContent),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func extractJSONObject(s string) string {
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last != -1 && last > first {
		return s[first : last+1]
	}
	return s
}
