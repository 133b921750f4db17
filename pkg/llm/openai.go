package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient talks to an OpenAI-compatible chat endpoint. Local
// runtimes (Ollama, llama.cpp server) expose this API, so one client
// covers both hosted and on-box models.
type OpenAIClient struct {
	sdk   sdk.Client
	model string
}

// NewOpenAIClient creates a client for the given endpoint and model.
// baseURL "" means the SDK default; local endpoints pass their /v1 URL.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	slog.Info("LLM client configured", "base_url", baseURL, "model", model)
	return &OpenAIClient{
		sdk:   sdk.NewClient(opts...),
		model: model,
	}
}

// Complete sends one chat completion request and returns the assistant
// text. Context deadline and cancellation are honored by the SDK.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: adaptMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(comp.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion: empty choices")
	}

	slog.Debug("LLM call finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", comp.Usage.PromptTokens,
		"completion_tokens", comp.Usage.CompletionTokens)

	return Response{
		Text:         comp.Choices[0].Message.Content,
		InputTokens:  int(comp.Usage.PromptTokens),
		OutputTokens: int(comp.Usage.CompletionTokens),
	}, nil
}

// Close releases client resources. The SDK client holds none beyond the
// HTTP transport, which is shared, so this is a no-op kept for the
// Client interface.
func (c *OpenAIClient) Close() error { return nil }

func adaptMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
