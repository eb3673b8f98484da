// Package openaicompat talks to OpenAI-compatible chat endpoints (Ollama, vLLM, DeepSeek and similar)
// through the go-openai library with a custom base URL.
package openaicompat

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fixdesk/hub/internal/huberrors"
)

// ProviderName identifies this oracle in errors, logs and metrics.
const ProviderName = "openai_compatible"

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty user prompt.
	ErrEmptyPrompt = errors.New("openaicompat: user prompt is empty")
	// ErrNoCompletion is returned when the response has no usable choice.
	ErrNoCompletion = errors.New("openaicompat: no completion in response")
	// ErrMissingBaseURL is returned by NewClient when baseURL is empty.
	ErrMissingBaseURL = errors.New("openaicompat: base URL is required")
	// ErrMissingModel is returned by NewClient when model is empty.
	ErrMissingModel = errors.New("openaicompat: model is required")
)

const defaultMaxTokens = 1024

// Client implements text completion against an OpenAI-compatible server.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewClient creates a client for baseURL (e.g. http://localhost:11434/v1). apiKey may be empty
// for servers without authentication. maxTokens <= 0 uses the default.
func NewClient(apiKey, baseURL, model string, maxTokens int) (*Client, error) {
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	if model == "" {
		return nil, ErrMissingModel
	}

	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Complete sends one system and one user message and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", huberrors.NewOracleError(ProviderName, "invalid request", ErrEmptyPrompt)
	}

	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", huberrors.NewOracleError(ProviderName, "chat completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", huberrors.NewOracleError(ProviderName, "malformed response", ErrNoCompletion)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", huberrors.NewOracleError(ProviderName, "malformed response", ErrNoCompletion)
	}

	return content, nil
}
