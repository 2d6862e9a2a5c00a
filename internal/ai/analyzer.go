package ai

import (
	"context"
	"fmt"

	"netsentry/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

const triagePrompt = `You are a network security analyst. Given the following
intrusion alert, explain in a short paragraph what likely happened and list
up to three concrete response steps. Be specific to the attack type and the
addresses involved.

Alert:
%s`

// Analyzer asks an OpenAI-compatible endpoint to triage an alert. Analysis
// is advisory: a failed or slow call never delays alert delivery, because
// the notifier treats it as best-effort.
type Analyzer struct {
	cfg    config.AIConfig
	client *openai.Client
}

// NewAnalyzer builds an analyzer for the configured endpoint.
func NewAnalyzer(cfg config.AIConfig) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Analyzer{cfg: cfg, client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Analyze returns a triage note for the rendered alert text.
func (a *Analyzer) Analyze(ctx context.Context, alertText string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.cfg.Model,
		MaxTokens: 1024,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(triagePrompt, alertText),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
