// Package googleai provides a thin wrapper around the Google Gen AI SDK for text generation (Gemini API).
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/fixdesk/hub/internal/huberrors"
)

// ProviderName identifies this oracle in errors, logs and metrics.
const ProviderName = "google"

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty user prompt.
	ErrEmptyPrompt = errors.New("googleai: user prompt is empty")
	// ErrNoCompletion is returned when the API response contains no text.
	ErrNoCompletion = errors.New("googleai: no completion in response")
)

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 1024
)

// Client calls the Gemini generateContent API via the Google Gen AI SDK.
type Client struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the model name (e.g. gemini-2.5-flash). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens caps the completion length. Values <= 0 use the default.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewClient creates a Gemini client. baseURL may be empty for the public endpoint.
func NewClient(ctx context.Context, apiKey, baseURL string, opts ...ClientOption) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	genaiClient, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		client:    genaiClient,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Complete generates text for userPrompt with systemPrompt as the system instruction.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", huberrors.NewOracleError(ProviderName, "invalid request", ErrEmptyPrompt)
	}

	maxTokens := c.maxTokens
	if maxTokens > math.MaxInt32 {
		maxTokens = math.MaxInt32
	}

	config := &genai.GenerateContentConfig{
		//nolint:gosec // G115: bounded above by math.MaxInt32
		MaxOutputTokens: int32(maxTokens),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", huberrors.NewOracleError(ProviderName, "generate content failed", err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", huberrors.NewOracleError(ProviderName, "malformed response", ErrNoCompletion)
	}

	return content, nil
}
