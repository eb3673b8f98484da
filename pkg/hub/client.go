// Package hub is a Go client for the solutions hub HTTP API.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrEmptyProblem is returned by GetSolutions before any request is made.
var ErrEmptyProblem = errors.New("problem must not be empty")

// ClientOptions configures the hub API client.
type ClientOptions struct {
	// BaseURL is the server root, e.g. "http://localhost:8080" (no /api suffix).
	BaseURL string
	// APIKey is sent as a Bearer token when set.
	APIKey string
	// RetryMax is the maximum number of retries for read-only calls (default: 3).
	// Resolve and feedback calls are never retried.
	RetryMax int
	// Timeout is the HTTP client timeout (default: 60 seconds, longer than a full oracle round trip).
	Timeout time.Duration
}

// Client is the hub API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

// Solution is one entry of a resolve response. SolutionID is nil for the fallback message.
type Solution struct {
	SolutionID   *string `json:"solution_id"`
	SolutionText string  `json:"solution_text"`
	SuccessCount int64   `json:"success_count"`
}

// StoredSolution is a persisted solution as returned by GetSolution.
type StoredSolution struct {
	SolutionID         string `json:"solution_id"`
	ProblemDescription string `json:"problem_description"`
	SolutionText       string `json:"solution_text"`
	SuccessCount       int64  `json:"success_count"`
}

// FeedbackResponse is the body of a successful feedback submission.
type FeedbackResponse struct {
	Message            string   `json:"message"`
	UnknownSolutionIDs []string `json:"unknown_solution_ids,omitempty"`
}

// APIError is a non-2xx response decoded from the server's problem document.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hub API request failed with status %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("hub API request failed with status %d", e.StatusCode)
}

type retryableKey struct{}

// NewClient creates a new hub API client with default settings.
func NewClient(baseURL, apiKey string) *Client {
	return NewClientWithOptions(ClientOptions{
		BaseURL: baseURL,
		APIKey:  apiKey,
	})
}

// NewClientWithOptions creates a new hub API client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/api")

	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil // Disable logging by default
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: retryClient,
	}
}

// BaseURL returns the normalized server root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// checkRetry retries only requests marked read-only. A resolve can call the oracle and a
// feedback call increments counters, so neither may be sent twice.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if retryable, _ := ctx.Value(retryableKey{}).(bool); !retryable {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// GetSolutions resolves a problem description to ranked solutions, best first.
func (c *Client) GetSolutions(ctx context.Context, problem string) ([]Solution, error) {
	if strings.TrimSpace(problem) == "" {
		return nil, ErrEmptyProblem
	}

	var out struct {
		Solutions []Solution `json:"solutions"`
	}

	if err := c.do(ctx, http.MethodPost, "/api/get-solutions", map[string]string{"problem": problem}, &out); err != nil {
		return nil, err
	}

	return out.Solutions, nil
}

// SubmitFeedback records one success vote per id. Ids unknown to the server are reported
// in the response, not as an error.
func (c *Client) SubmitFeedback(ctx context.Context, solutionIDs []string) (*FeedbackResponse, error) {
	var out FeedbackResponse

	body := map[string][]string{"solutionIds": solutionIDs}
	if err := c.do(ctx, http.MethodPost, "/api/submit-feedback", body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetSolution fetches one stored solution by id.
func (c *Client) GetSolution(ctx context.Context, id string) (*StoredSolution, error) {
	var out StoredSolution

	ctx = context.WithValue(ctx, retryableKey{}, true)
	if err := c.do(ctx, http.MethodGet, "/api/solutions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Ready reports whether the server and its store are available.
func (c *Client) Ready(ctx context.Context) error {
	ctx = context.WithValue(ctx, retryableKey{}, true)

	return c.do(ctx, http.MethodGet, "/ready", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("Failed to read error response body", "error", err)
		} else if json.Unmarshal(raw, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}

		apiErr.StatusCode = resp.StatusCode

		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
