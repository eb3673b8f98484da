// Package openai provides a thin wrapper around the official OpenAI Go SDK for chat completions.
package openai

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/fixdesk/hub/internal/huberrors"
)

// ProviderName identifies this oracle in errors, logs and metrics.
const ProviderName = "openai"

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty user prompt.
	ErrEmptyPrompt = errors.New("openai: user prompt is empty")
	// ErrNoCompletion is returned when the API response contains no usable message content.
	ErrNoCompletion = errors.New("openai: no completion in response")
)

const (
	defaultModel     = string(openaisdk.ChatModelGPT4o)
	defaultMaxTokens = 1024
)

// Client calls the OpenAI chat completions API via the official SDK.
type Client struct {
	sdk       openaisdk.Client
	model     string
	maxTokens int
}

// ClientOption configures the Client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	model     string
	maxTokens int
	baseURL   string
}

// WithModel sets the chat model (e.g. gpt-4o). Empty uses default.
func WithModel(model string) ClientOption {
	return func(s *clientSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxTokens caps the completion length. Values <= 0 use the default.
func WithMaxTokens(n int) ClientOption {
	return func(s *clientSettings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithBaseURL points the client at a different API root (proxies, tests).
func WithBaseURL(url string) ClientOption {
	return func(s *clientSettings) {
		s.baseURL = url
	}
}

// NewClient creates an OpenAI chat client using the official SDK.
// SDK retries are disabled: a failed completion is reported once.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	settings := clientSettings{
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if settings.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(settings.baseURL))
	}

	return &Client{
		sdk:       openaisdk.NewClient(reqOpts...),
		model:     settings.model,
		maxTokens: settings.maxTokens,
	}
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

	messages := []openaisdk.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	}

	messages = append(messages, openaisdk.UserMessage(userPrompt))

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:               openaisdk.ChatModel(c.model),
		Messages:            messages,
		MaxCompletionTokens: param.NewOpt(int64(c.maxTokens)),
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
