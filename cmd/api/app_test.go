package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixdesk/hub/internal/api/handlers"
	"github.com/fixdesk/hub/internal/config"
	"github.com/fixdesk/hub/internal/models"
)

type stubSolutionsService struct{}

func (stubSolutionsService) Resolve(context.Context, string) ([]models.Solution, error) {
	return []models.Solution{}, nil
}

func (stubSolutionsService) RecordFeedback(_ context.Context, ids []models.SolutionID) (*models.FeedbackResult, error) {
	return &models.FeedbackResult{Applied: len(ids)}, nil
}

func (stubSolutionsService) GetSolution(_ context.Context, id models.SolutionID) (*models.Solution, error) {
	return &models.Solution{ID: &id, SolutionText: "Unmute."}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		OracleTimeout:       time.Second,
		MaxRequestBodyBytes: 64,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, metricsHandler http.Handler) *httptest.Server {
	t.Helper()

	server := newHTTPServer(cfg,
		handlers.NewHealthHandler(nil),
		handlers.NewSolutionsHandler(stubSolutionsService{}),
		metricsHandler, nil, nil, nil,
	)

	srv := httptest.NewServer(server.Handler)
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, method, url, body string, header map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)

	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestHTTPServer_Routes(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "s3cret"
	srv := newTestServer(t, cfg, nil)

	auth := map[string]string{"Authorization": "Bearer s3cret"}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		header map[string]string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", nil, http.StatusOK},
		{"ready is public", http.MethodGet, "/ready", "", nil, http.StatusOK},
		{"api requires key", http.MethodPost, "/api/get-solutions", `{"problem":"x"}`, nil, http.StatusUnauthorized},
		{"resolve with key", http.MethodPost, "/api/get-solutions", `{"problem":"x"}`, auth, http.StatusOK},
		{"legacy resolve", http.MethodGet, "/api/get-solutions?problem=x", "", auth, http.StatusOK},
		{"feedback", http.MethodPost, "/api/submit-feedback", `{"solutionIds":[1]}`, auth, http.StatusOK},
		{"get solution", http.MethodGet, "/api/solutions/1", "", auth, http.StatusOK},
		{"body over limit", http.MethodPost, "/api/get-solutions", `{"problem":"` + strings.Repeat("a", 100) + `"}`, auth, http.StatusRequestEntityTooLarge},
		{"wrong method", http.MethodDelete, "/api/solutions/1", "", auth, http.StatusMethodNotAllowed},
		{"metrics disabled", http.MethodGet, "/metrics", "", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body, tt.header)

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}
}

func TestHTTPServer_MetricsAndStatic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Fix it</h1>"), 0o600))

	cfg := testConfig()
	cfg.StaticDir = dir

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv := newTestServer(t, cfg, metrics)

	resp := do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = do(t, http.MethodPost, srv.URL+"/api/get-solutions", `{"problem":"x"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "no API key configured")
}

func TestNewOracle(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		wantName string
		wantErr  bool
	}{
		{"openai", config.Config{OracleProvider: config.OracleProviderOpenAI, OracleAPIKey: "sk"}, "openai", false},
		{"google", config.Config{OracleProvider: config.OracleProviderGoogle, OracleAPIKey: "g"}, "google", false},
		{"anthropic", config.Config{OracleProvider: config.OracleProviderAnthropic, OracleAPIKey: "a"}, "anthropic", false},
		{
			"openai compatible",
			config.Config{OracleProvider: config.OracleProviderOpenAICompatible, OracleBaseURL: "http://localhost:11434/v1", OracleModel: "llama3"},
			"openai_compatible", false,
		},
		{"openai compatible without model", config.Config{OracleProvider: config.OracleProviderOpenAICompatible, OracleBaseURL: "http://x"}, "", true},
		{"unknown", config.Config{OracleProvider: "mystery"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle, err := newOracle(context.Background(), &tt.cfg)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, oracle.Name())
		})
	}
}
