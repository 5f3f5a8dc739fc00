// Package extractor implements the Chunk Extractor Node: per-chunk LLM
// fact extraction, grounded on
// original_source/agents/chunk_extractor_node.py's
// extract_facts_from_transcript_chunk (schema, prompt rules, JSON-recovery
// parsing) and the teacher's pkg/mcp/executor.go tool-resolution idiom
// (validate the call, parse its arguments defensively, never let a
// malformed tool call abort the whole operation).
package extractor

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

const recordFactsTool = "record_facts"

const systemPrompt = "You are a precise information extraction system. " +
	"Extract actionable, atomic facts from meeting transcript text. " +
	"Return ONLY valid JSON, no extra text."

var factSchemaHint = fmt.Sprintf(`{"facts":[{"fact_type":"one of: %s","fact_content":"string (atomic fact)","source_quote":"string (short exact quote from the chunk)","certainty":"integer 0..100"}]}`,
	strings.Join(factTypeStrings(), ", "))

var recordFactsParameters = `{
  "type": "object",
  "properties": {
    "facts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "fact_type": {"type": "string"},
          "fact_content": {"type": "string"},
          "source_quote": {"type": "string"},
          "certainty": {"type": "integer"}
        },
        "required": ["fact_type", "fact_content"]
      }
    }
  },
  "required": ["facts"]
}`

func factTypeStrings() []string {
	out := make([]string, len(models.FactTypeValues))
	for i, v := range models.FactTypeValues {
		out[i] = string(v)
	}
	return out
}

// Extractor runs one Chunk Extractor Node invocation per transcript chunk.
type Extractor struct {
	client   llm.Client
	limiter  llm.RateLimiter
	provider *config.LLMProviderConfig
	name     string
}

// New returns an Extractor using client for completions, limiter for
// throttling, and provider for model/temperature/token settings. name
// tags the extraction strategy (e.g. "default") in its result.
func New(client llm.Client, limiter llm.RateLimiter, provider *config.LLMProviderConfig, name string) *Extractor {
	if name == "" {
		name = "default"
	}
	return &Extractor{client: client, limiter: limiter, provider: provider, name: name}
}

// Result is one Chunk Extractor Node invocation's output.
type Result struct {
	MeetingID     string
	SourceChunkID string
	ChunkIndex    int
	Speaker       string
	Extractor     string
	Model         string
	ElapsedMs     int64
	Facts         []models.ExtractedFact
}

// maxFallbackFacts caps the fact count on the final, shortest-prompt
// fallback pass (spec §4.9).
const maxFallbackFacts = 12

// Extract runs the extraction prompt over chunk's content, preferring a
// tool call (record_facts) when the provider returns one. If the tool call
// is rejected, absent, or fails transiently, it re-invokes in JSON-only mode
// with a stricter schema hint; if that also fails, it retries once more
// with a shorter prompt and a hard cap on fact count (spec §4.9 fallback).
func (e *Extractor) Extract(ctx context.Context, chunk models.TranscriptChunk) (*Result, error) {
	started := time.Now()

	rawFacts, err := e.extractViaToolCall(ctx, chunk.ChunkContent)
	if err != nil {
		rawFacts, err = e.extractViaJSONMode(ctx, chunk.ChunkContent)
	}
	if err != nil {
		rawFacts, err = e.extractViaShortJSONMode(ctx, chunk.ChunkContent)
	}
	if err != nil {
		return nil, fmt.Errorf("extractor: all extraction attempts failed: %w", err)
	}
	elapsed := time.Since(started).Milliseconds()

	now := time.Now().UTC()
	facts := make([]models.ExtractedFact, 0, len(rawFacts))
	for _, rf := range rawFacts {
		fact := normalizeFact(rf)
		if fact.FactContent == "" {
			continue
		}
		fact.ID = uuid.NewString()
		fact.MeetingID = chunk.MeetingID
		fact.SourceChunkID = chunk.ID
		fact.Speaker = chunk.Speaker
		fact.CreatedAt = now
		facts = append(facts, fact)
	}

	return &Result{
		MeetingID:     chunk.MeetingID,
		SourceChunkID: chunk.ID,
		ChunkIndex:    chunk.ChunkIndex,
		Speaker:       chunk.Speaker,
		Extractor:     e.name,
		Model:         e.provider.Model,
		ElapsedMs:     elapsed,
		Facts:         facts,
	}, nil
}

// complete issues one chat completion, acquiring rate-limiter headroom
// first. useTools selects tool-calling mode; otherwise the request asks for
// a strict JSON object response.
func (e *Extractor) complete(ctx context.Context, userPrompt string, useTools bool) (*llm.CompletionResult, error) {
	estTokens := llm.EstimateTokens(systemPrompt+userPrompt) + max32(e.provider.MaxOutputTokens)
	if err := e.limiter.Acquire(ctx, estTokens); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := llm.CompletionRequest{
		Model:           e.provider.Model,
		Temperature:     e.provider.Temperature,
		MaxOutputTokens: e.provider.MaxOutputTokens,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
	}
	if useTools {
		req.Tools = []llm.ToolDefinition{{
			Name:        recordFactsTool,
			Description: "Record the atomic facts extracted from this transcript chunk.",
			Parameters:  recordFactsParameters,
		}}
	} else {
		req.JSONObject = true
	}

	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	return resp, nil
}

// extractViaToolCall is the primary, tool-calling pass.
func (e *Extractor) extractViaToolCall(ctx context.Context, chunkText string) ([]rawFact, error) {
	resp, err := e.complete(ctx, buildUserPrompt(chunkText), true)
	if err != nil {
		return nil, err
	}
	return resolveFacts(*resp)
}

// extractViaJSONMode re-invokes in strict JSON-object mode with the same
// content and a stricter schema hint, for when the tool call was rejected,
// absent, or malformed.
func (e *Extractor) extractViaJSONMode(ctx context.Context, chunkText string) ([]rawFact, error) {
	resp, err := e.complete(ctx, buildJSONOnlyPrompt(chunkText), false)
	if err != nil {
		return nil, err
	}
	return resolveFacts(*resp)
}

// extractViaShortJSONMode is the last-resort pass: a shorter prompt and a
// hard cap of maxFallbackFacts, for when JSON mode has also failed.
func (e *Extractor) extractViaShortJSONMode(ctx context.Context, chunkText string) ([]rawFact, error) {
	resp, err := e.complete(ctx, buildShortJSONOnlyPrompt(chunkText), false)
	if err != nil {
		return nil, err
	}
	facts, err := resolveFacts(*resp)
	if err != nil {
		return nil, err
	}
	if len(facts) > maxFallbackFacts {
		facts = facts[:maxFallbackFacts]
	}
	return facts, nil
}

func max32(v int) int {
	if v < 32 {
		return 32
	}
	return v
}

func buildUserPrompt(chunkText string) string {
	return "Extract facts from the following transcript chunk.\n" +
		"Rules:\n" +
		"- Facts must be specific and independently true.\n" +
		"- Prefer actions, decisions, constraints, questions, reminders.\n" +
		"- fact_type MUST be one of the allowed enum values.\n" +
		"- Use a short direct quote as evidence when possible.\n" +
		"- certainty is an integer 0..100 (higher means more confident).\n" +
		"- If nothing meaningful, call record_facts with an empty facts list.\n\n" +
		"Chunk:\n" + chunkText + "\n\n" +
		"Shape reference: " + factSchemaHint
}

// buildJSONOnlyPrompt is the spec §4.9 fallback prompt: same content, a
// stricter instruction to emit exactly one JSON object, no tool call.
func buildJSONOnlyPrompt(chunkText string) string {
	return buildUserPrompt(chunkText) + "\n\n" +
		"Do not call any function or tool. Respond with exactly one JSON " +
		"object matching this shape and nothing else: " + factSchemaHint
}

// buildShortJSONOnlyPrompt is the final fallback pass: a shorter prompt and
// an explicit fact-count cap, for when JSON mode has also failed.
func buildShortJSONOnlyPrompt(chunkText string) string {
	return "Extract at most 12 atomic facts from this transcript chunk. " +
		"Respond with exactly one JSON object and nothing else: " + factSchemaHint + "\n\n" +
		"Chunk:\n" + chunkText
}

type rawFact struct {
	FactType    string `json:"fact_type"`
	FactContent string `json:"fact_content"`
	SourceQuote string `json:"source_quote"`
	Certainty   any    `json:"certainty"`
}

type factsEnvelope struct {
	Facts []rawFact `json:"facts"`
}

// resolveFacts prefers the record_facts tool call's arguments; if the
// model didn't call it, falls back to parsing the reply content as a JSON
// object, recovering a `{...}` substring from messy output the same way
// the original's `_extract_json_object` does.
func resolveFacts(resp llm.CompletionResult) ([]rawFact, error) {
	for _, call := range resp.ToolCalls {
		if call.Name != recordFactsTool {
			continue
		}
		var env factsEnvelope
		if err := json.Unmarshal([]byte(call.Arguments), &env); err != nil {
			return nil, fmt.Errorf("malformed %s arguments: %w", recordFactsTool, err)
		}
		return env.Facts, nil
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, fmt.Errorf("llm returned empty response content")
	}
	var env factsEnvelope
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &env); err != nil {
		return nil, fmt.Errorf("parsing content as JSON: %w", err)
	}
	return env.Facts, nil
}

// extractJSONObject tries to recover a `{...}` object from messy model
// output, mirroring the original's `_extract_json_object`.
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

// normalizeFact mirrors the original's defaulting: unknown fact_type
// values are kept but normalized to "statement" rather than dropped,
// certainty defaults to 70 and is clamped to [0, 100].
func normalizeFact(rf rawFact) models.ExtractedFact {
	factType := models.FactType(strings.ToLower(strings.TrimSpace(rf.FactType)))
	if !factType.IsValid() {
		factType = models.FactStatement
	}

	certainty := 70
	switch v := rf.Certainty.(type) {
	case float64:
		certainty = int(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			certainty = int(f)
		}
	}
	if certainty < 0 {
		certainty = 0
	}
	if certainty > 100 {
		certainty = 100
	}

	return models.ExtractedFact{
		FactType:    factType,
		FactContent: strings.TrimSpace(rf.FactContent),
		SourceQuote: strings.TrimSpace(rf.SourceQuote),
		Certainty:   certainty,
	}
}
