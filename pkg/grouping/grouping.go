// Package grouping implements the Grouping Node: it assigns a short
// group_label to every extracted fact by batching facts through an LLM
// call, grounded on original_source/agents/grouping_node.py's
// label_facts_with_group_labels (label regex, batching, default-label
// fallback behavior ported verbatim).
package grouping

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/llm"
	"github.com/smartmeet/notetaker/pkg/models"
)

var groupLabelRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,98}[a-z0-9]$|^[a-z0-9]$`)

var nonLabelChars = regexp.MustCompile(`[^a-z0-9_\-]`)
var whitespaceRun = regexp.MustCompile(`\s+`)
var underscoreRun = regexp.MustCompile(`_+`)

const systemPrompt = "You are a semantic grouping system. " +
	"Given extracted meeting facts, assign a concise group_label to each fact. " +
	"Return ONLY valid JSON."

// Grouper assigns group labels to batches of extracted facts.
type Grouper struct {
	client   llm.Client
	limiter  llm.RateLimiter
	provider *config.LLMProviderConfig
	cfg      *config.GroupingConfig
}

// New returns a Grouper using client/limiter/provider for completions and
// cfg for the default label and batch size.
func New(client llm.Client, limiter llm.RateLimiter, provider *config.LLMProviderConfig, cfg *config.GroupingConfig) *Grouper {
	if cfg == nil {
		cfg = config.DefaultGroupingConfig()
	}
	return &Grouper{client: client, limiter: limiter, provider: provider, cfg: cfg}
}

// DefaultLabel returns the normalized fallback label used when the model
// omits a fact or returns something unusable.
func (g *Grouper) DefaultLabel() string {
	return normalizeGroupLabel(g.cfg.DefaultLabel, g.cfg.DefaultLabel)
}

// LabelFacts assigns a group_label to every fact in facts, batching calls
// at cfg.MaxFactsPerCall facts per LLM invocation, mutating and returning
// copies (the caller's slice is left untouched).
func (g *Grouper) LabelFacts(ctx context.Context, meetingID string, facts []models.ExtractedFact) ([]models.ExtractedFact, error) {
	batchSize := g.cfg.MaxFactsPerCall
	if batchSize <= 0 {
		batchSize = 30
	}

	out := make([]models.ExtractedFact, 0, len(facts))
	for start := 0; start < len(facts); start += batchSize {
		end := start + batchSize
		if end > len(facts) {
			end = len(facts)
		}
		batch := facts[start:end]

		labels, err := g.labelBatch(ctx, meetingID, batch)
		if err != nil {
			return nil, fmt.Errorf("grouping: %w", err)
		}
		for i, f := range batch {
			label := normalizeGroupLabel(labels[i], g.cfg.DefaultLabel)
			f.GroupLabel = &label
			out = append(out, f)
		}
	}
	return out, nil
}

type labelItem struct {
	Index       int    `json:"i"`
	FactType    string `json:"fact_type"`
	Speaker     string `json:"speaker"`
	FactContent string `json:"fact_content"`
}

type labelsEnvelope struct {
	Labels []rawLabel `json:"labels"`
}

type rawLabel struct {
	Index      int    `json:"i"`
	GroupLabel string `json:"group_label"`
}

// labelBatch returns one label per fact in batch, indexed by position,
// defaulting any fact the model didn't mention to the configured default.
func (g *Grouper) labelBatch(ctx context.Context, meetingID string, batch []models.ExtractedFact) (map[int]string, error) {
	items := make([]labelItem, len(batch))
	for i, f := range batch {
		items[i] = labelItem{Index: i, FactType: string(f.FactType), Speaker: f.Speaker, FactContent: f.FactContent}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	userPrompt := "Assign a group_label to each fact.\n" +
		"Rules:\n" +
		"- group_label MUST be <= 100 characters.\n" +
		"- Use lowercase and underscores only.\n" +
		"- Prefer stable labels like: action_items, decisions, open_questions, constraints, risks, next_steps, proposals, agreements, disagreements, reminders.\n" +
		"- Facts that clearly belong together should share the same group_label.\n" +
		"- If unsure, use group_label=\"" + g.cfg.DefaultLabel + "\".\n\n" +
		"meeting_id: " + meetingID + "\n" +
		"facts: " + string(itemsJSON) + "\n\n" +
		`Return JSON matching this shape: {"labels":[{"i":0,"group_label":"string"}]}`

	estTokens := llm.EstimateTokens(systemPrompt + userPrompt)
	if err := g.limiter.Acquire(ctx, estTokens); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := llm.CompletionRequest{
		Model:           g.provider.Model,
		Temperature:     0.2,
		MaxOutputTokens: g.provider.MaxOutputTokens,
		JSONObject:      true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
	}

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	var env labelsEnvelope
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, fmt.Errorf("llm returned empty response content")
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &env); err != nil {
		return nil, fmt.Errorf("parsing labels JSON: %w", err)
	}

	out := make(map[int]string, len(batch))
	for _, item := range env.Labels {
		if item.Index < 0 || item.Index >= len(batch) {
			continue
		}
		out[item.Index] = item.GroupLabel
	}
	for i := range batch {
		if _, ok := out[i]; !ok {
			out[i] = g.cfg.DefaultLabel
		}
	}
	return out, nil
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

// normalizeGroupLabel mirrors the original's `_normalize_group_label`:
// lowercase, collapse whitespace to underscores, strip disallowed
// characters, cap at 100 chars, and fall back to defaultLabel if the
// result is empty or doesn't match the label shape.
func normalizeGroupLabel(label, defaultLabel string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = whitespaceRun.ReplaceAllString(s, "_")
	s = nonLabelChars.ReplaceAllString(s, "")
	s = truncate(s, 100)

	if s == "" {
		return defaultLabel
	}
	if !groupLabelRe.MatchString(s) {
		s = underscoreRun.ReplaceAllString(s, "_")
		s = strings.Trim(s, "_-")
		if s == "" {
			s = defaultLabel
		}
		s = truncate(s, 100)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
