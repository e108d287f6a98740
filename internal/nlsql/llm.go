package nlsql

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deadloked8999/exeltest/internal/config"
)

// Prompt is one chat completion request.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer is the language-model backend: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

var errEmptyCompletion = errors.New("model returned no choices")

// OpenAIClient talks to any OpenAI-compatible chat endpoint; by default the
// DeepSeek API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	temperature := p.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := p.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
