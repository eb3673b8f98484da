// Package anthropic provides a thin wrapper around the official Anthropic Go SDK for message completions.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fixdesk/hub/internal/huberrors"
)

// ProviderName identifies this oracle in errors, logs and metrics.
const ProviderName = "anthropic"

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty user prompt.
	ErrEmptyPrompt = errors.New("anthropic: user prompt is empty")
	// ErrNoCompletion is returned when the response has no text blocks.
	ErrNoCompletion = errors.New("anthropic: no completion in response")
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

// Client calls the Anthropic Messages API.
type Client struct {
	client    anthropicsdk.Client
	model     string
	maxTokens int64
}

// ClientOption configures the Client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	model     string
	maxTokens int64
	baseURL   string
}

// WithModel sets the model name. Empty uses default.
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
			s.maxTokens = int64(n)
		}
	}
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(url string) ClientOption {
	return func(s *clientSettings) {
		s.baseURL = url
	}
}

// NewClient creates an Anthropic client with SDK retries disabled.
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
		client:    anthropicsdk.NewClient(reqOpts...),
		model:     settings.model,
		maxTokens: settings.maxTokens,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Complete sends userPrompt with systemPrompt as the system block and joins the text blocks of the reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", huberrors.NewOracleError(ProviderName, "invalid request", ErrEmptyPrompt)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", huberrors.NewOracleError(ProviderName, "message request failed", err)
	}

	var b strings.Builder

	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", huberrors.NewOracleError(ProviderName, "malformed response", ErrNoCompletion)
	}

	return content, nil
}
