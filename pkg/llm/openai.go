package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/smartmeet/notetaker/pkg/config"
)

// OpenAIClient implements Client against any OpenAI-compatible
// chat-completions endpoint (Groq, OpenAI itself, etc, selected per
// LLMProviderConfig.BaseURL), retrying transient failures the same way
// original_source/agents/chunk_extractor_node.py's `_groq_chat` retry loop
// does but through the ecosystem-standard backoff library instead of a
// hand-rolled sleep loop.
type OpenAIClient struct {
	api        *openai.Client
	maxRetries uint64
}

// NewOpenAIClient builds an OpenAIClient from a provider config.
func NewOpenAIClient(cfg *config.LLMProviderConfig, apiKey string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{api: &client, maxRetries: 3}
}

// Complete issues one chat completion, retrying 429/5xx responses with
// exponential backoff and treating everything else (bad request, auth
// failure, malformed response) as permanent.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxOutputTokens)),
	}
	if req.JSONObject {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	var result *CompletionResult
	op := func() error {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRetryableOpenAIError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("llm: completion returned no choices"))
		}
		choice := resp.Choices[0]
		result = &CompletionResult{
			Content: choice.Message.Content,
			Usage: Usage{
				InputTokens:  int(resp.Usage.PromptTokens),
				OutputTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:  int(resp.Usage.TotalTokens),
			},
		}
		for _, tc := range choice.Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("llm: completion failed: %w", err)
	}
	return result, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  parseFunctionParameters(t.Parameters),
		}))
	}
	return out
}

func parseFunctionParameters(schemaJSON string) shared.FunctionParameters {
	var params shared.FunctionParameters
	if schemaJSON == "" {
		return shared.FunctionParameters{}
	}
	if err := json.Unmarshal([]byte(schemaJSON), &params); err != nil {
		return shared.FunctionParameters{}
	}
	return params
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return true
}
