package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/fixdesk/hub/internal/anthropic"
	"github.com/fixdesk/hub/internal/api/handlers"
	"github.com/fixdesk/hub/internal/api/middleware"
	"github.com/fixdesk/hub/internal/config"
	"github.com/fixdesk/hub/internal/googleai"
	"github.com/fixdesk/hub/internal/observability"
	"github.com/fixdesk/hub/internal/openai"
	"github.com/fixdesk/hub/internal/openaicompat"
	"github.com/fixdesk/hub/internal/repository"
	"github.com/fixdesk/hub/internal/service"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	server         *http.Server
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

var errUnsupportedOracleProvider = errors.New("unsupported oracle provider")

// setupMetrics creates the meter provider, the /metrics handler and hub metrics when metrics are enabled.
// When NewMeterProvider returns nil (disabled exporter), everything is nil (metrics disabled).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, metricsHandler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("hub"))
	if err != nil {
		err2 := observability.ShutdownMeterProvider(context.Background(), mp)
		if err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metricsHandler, metrics, nil
}

// newOracle builds the completion client selected by ORACLE_PROVIDER.
func newOracle(ctx context.Context, cfg *config.Config) (service.Oracle, error) {
	switch cfg.OracleProvider {
	case config.OracleProviderOpenAI:
		opts := []openai.ClientOption{openai.WithModel(cfg.OracleModel), openai.WithMaxTokens(cfg.OracleMaxTokens)}
		if cfg.OracleBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OracleBaseURL))
		}

		return openai.NewClient(cfg.OracleAPIKey, opts...), nil
	case config.OracleProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.OracleAPIKey, cfg.OracleBaseURL,
			googleai.WithModel(cfg.OracleModel),
			googleai.WithMaxTokens(cfg.OracleMaxTokens),
		)
		if err != nil {
			return nil, fmt.Errorf("create google oracle client: %w", err)
		}

		return client, nil
	case config.OracleProviderAnthropic:
		opts := []anthropic.ClientOption{anthropic.WithModel(cfg.OracleModel), anthropic.WithMaxTokens(cfg.OracleMaxTokens)}
		if cfg.OracleBaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.OracleBaseURL))
		}

		return anthropic.NewClient(cfg.OracleAPIKey, opts...), nil
	case config.OracleProviderOpenAICompatible:
		client, err := openaicompat.NewClient(cfg.OracleAPIKey, cfg.OracleBaseURL, cfg.OracleModel, cfg.OracleMaxTokens)
		if err != nil {
			return nil, fmt.Errorf("create openai-compatible oracle client: %w", err)
		}

		return client, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedOracleProvider, cfg.OracleProvider)
	}
}

// NewApp builds and wires all components. It does not start the HTTP server;
// call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err            error
		meterProvider  *sdkmetric.MeterProvider
		metricsHandler http.Handler
		metrics        *observability.Metrics
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metricsHandler, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if err2 := shutdownObservability(context.Background(), nil, meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after tracer provider error", "error", err2)
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	oracle, err := newOracle(context.Background(), cfg)
	if err != nil {
		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after oracle error", "error", err2)
		}

		return nil, err
	}

	slog.Info("oracle configured",
		"provider", oracle.Name(),
		"model", cfg.OracleModel,
		"timeout", cfg.OracleTimeout,
		"rate_limit", cfg.OracleRateLimit,
		"fallback", cfg.OracleFallback,
	)

	var (
		resolverMetrics observability.ResolverMetrics
		apiMetrics      observability.APIMetrics
	)
	if metrics != nil {
		resolverMetrics = metrics.Resolver
		apiMetrics = metrics.API
	}

	solutionsService := service.NewSolutionsService(service.SolutionsServiceParams{
		Repo:          repository.NewSolutionsRepository(db),
		Oracle:        oracle,
		Limiter:       rate.NewLimiter(rate.Limit(cfg.OracleRateLimit), 1),
		OracleTimeout: cfg.OracleTimeout,
		Fallback:      service.FallbackMode(cfg.OracleFallback),
		Metrics:       resolverMetrics,
		Logger:        slog.Default(),
	})

	server := newHTTPServer(
		cfg,
		handlers.NewHealthHandler(db),
		handlers.NewSolutionsHandler(solutionsService),
		metricsHandler,
		apiMetrics,
		meterProvider, tracerProvider,
	)

	return &App{
		cfg:            cfg,
		server:         server,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health, /ready and /metrics;
// optional API key and body limit on /api/; static front end at /).
// Handler chain: RequestID -> otelhttp(Logging(mux)) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	solutions *handlers.SolutionsHandler,
	metricsHandler http.Handler,
	apiMetrics observability.APIMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/get-solutions", solutions.Resolve)
	api.HandleFunc("GET /api/get-solutions", solutions.ResolveQuery)
	api.HandleFunc("POST /api/submit-feedback", solutions.SubmitFeedback)
	api.HandleFunc("GET /api/solutions/{id}", solutions.Get)

	var protected http.Handler = api
	protected = middleware.Auth(cfg.APIKey)(protected)
	protected = middleware.MaxBody(cfg.MaxRequestBodyBytes, apiMetrics)(protected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Check)
	mux.HandleFunc("GET /ready", health.Ready)
	mux.Handle("/api/", protected)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for probes and scrapes.
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/health", "/ready", "/metrics":
				return false
			default:
				return true
			}
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log (trace_id/span_id in access logs).
	inner := middleware.Logging(mux)
	handler := otelhttp.NewHandler(inner, "solutions-hub", otelOpts...)
	handler = middleware.RequestID(handler)

	// WriteTimeout must outlast a full oracle round trip.
	writeTimeout := cfg.OracleTimeout + 15*time.Second

	const (
		readTimeout = 15 * time.Second
		idleTimeout = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server, then blocks until ctx is cancelled (e.g. signal)
// or the server fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and flushes telemetry. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when the server shuts down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
