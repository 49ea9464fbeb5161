package adapter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zen-systems/helmsman/pkg/artifact"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekAdapter serves DeepSeek models through their OpenAI-compatible
// API.
type DeepSeekAdapter struct {
	client openai.Client
}

// NewDeepSeekAdapter creates a new DeepSeek adapter.
func NewDeepSeekAdapter(apiKey string) (*DeepSeekAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(deepseekBaseURL),
	)
	return &DeepSeekAdapter{client: client}, nil
}

// Name returns the adapter identifier.
func (a *DeepSeekAdapter) Name() string {
	return "deepseek"
}

// Models returns the list of supported DeepSeek models.
func (a *DeepSeekAdapter) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-coder",
		"deepseek-reasoner",
	}
}

// Generate sends a prompt to DeepSeek and returns the response.
func (a *DeepSeekAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(4096),
	})
	if err != nil {
		return nil, fmt.Errorf("deepseek API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("deepseek returned no choices")
	}

	return &Response{
		Artifact: artifact.New(resp.Choices[0].Message.Content, a.Name(), model, prompt),
		Usage: &Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
