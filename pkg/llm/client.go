// Package llm is the meeting pipeline's OpenAI-compatible chat-completion
// client and rate limiter, grounded on
// original_source/agents/chunk_extractor_node.py's `_groq_chat`/
// `_WindowRateLimiter` and the teacher's pkg/agent/llm_client.go typed
// role vocabulary — generalized from the teacher's gRPC-streamed
// Gemini/LangChain backend to a direct OpenAI-compatible HTTP client since
// this pipeline's providers (Groq, OpenAI) speak that protocol natively and
// every call here is a single non-streaming completion.
package llm

import (
	"context"
)

// Message roles, matching the teacher's RoleSystem/RoleUser/RoleAssistant/
// RoleTool vocabulary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role       string
	Content    string
	ToolCallID string // set on RoleTool messages
	ToolName   string // set on RoleTool messages
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  string // JSON Schema
}

// ToolCall is one function-call the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionRequest is one non-streaming chat-completion call. The
// extractor sets Tools for tool-calling mode on its primary pass and
// JSONObject on its fallback passes; the grouping and aggregator nodes set
// JSONObject for strict-JSON mode (spec §9 design note: tool-calling is
// authoritative when the provider supports it, with JSON-mode as fallback).
type CompletionRequest struct {
	Model           string
	Messages        []Message
	Temperature     float64
	MaxOutputTokens int
	JSONObject      bool
	Tools           []ToolDefinition
}

// CompletionResult is the model's reply.
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client is the capability pipeline nodes depend on. Implementations must
// apply their own retry policy for transient failures (spec §6); callers
// only see a terminal error.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// EstimateTokens is the same rough heuristic the original throttle uses:
// roughly 4 characters per token for English-ish text, good enough for
// rate-limiting rather than billing.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}
