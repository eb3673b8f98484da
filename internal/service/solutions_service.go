package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/fixdesk/hub/internal/huberrors"
	"github.com/fixdesk/hub/internal/models"
	"github.com/fixdesk/hub/internal/observability"
)

// SystemPrompt is the fixed system role sent with every oracle request.
const SystemPrompt = "You are an expert problem-diagnosis assistant. Given a description of a technical problem, " +
	"reply with a concise, step-by-step solution. You may use **bold** and *italic* markers and line breaks."

// FallbackSolutionText is returned in place of a generated solution when the oracle fails.
const FallbackSolutionText = "Sorry, we could not generate a solution for this problem right now. Please try again later."

const userPromptFormat = "How can I fix this issue? %s"

const defaultOracleTimeout = 30 * time.Second

// FallbackMode selects what Resolve returns when the oracle fails.
type FallbackMode string

const (
	// FallbackMessage returns a single unpersisted solution carrying FallbackSolutionText.
	FallbackMessage FallbackMode = "message"
	// FallbackEmpty returns an empty list.
	FallbackEmpty FallbackMode = "empty"
)

// SolutionsRepository defines the store operations the resolver needs.
type SolutionsRepository interface {
	FindByProblem(ctx context.Context, problem string) ([]models.Solution, error)
	Insert(ctx context.Context, problem, solutionText string) (*models.Solution, error)
	GetByID(ctx context.Context, id models.SolutionID) (*models.Solution, error)
	IncrementSuccess(ctx context.Context, ids []models.SolutionID) ([]models.SolutionID, error)
}

// Oracle generates a solution text from a system and user prompt.
// Implementations must not retry; any error is treated as oracle failure.
type Oracle interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SolutionsService resolves problems to ranked solutions and records success feedback.
type SolutionsService struct {
	repo          SolutionsRepository
	oracle        Oracle
	limiter       *rate.Limiter
	oracleTimeout time.Duration
	fallback      FallbackMode
	metrics       observability.ResolverMetrics
	logger        *slog.Logger
	generateGroup singleflight.Group
}

// SolutionsServiceParams configures SolutionsService. Limiter and Metrics may be nil.
// OracleTimeout <= 0 uses 30s; an empty Fallback uses FallbackMessage.
type SolutionsServiceParams struct {
	Repo          SolutionsRepository
	Oracle        Oracle
	Limiter       *rate.Limiter
	OracleTimeout time.Duration
	Fallback      FallbackMode
	Metrics       observability.ResolverMetrics
	Logger        *slog.Logger
}

// NewSolutionsService creates a SolutionsService.
func NewSolutionsService(p SolutionsServiceParams) *SolutionsService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := p.OracleTimeout
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}

	fallback := p.Fallback
	if fallback == "" {
		fallback = FallbackMessage
	}

	return &SolutionsService{
		repo:          p.Repo,
		oracle:        p.Oracle,
		limiter:       p.Limiter,
		oracleTimeout: timeout,
		fallback:      fallback,
		metrics:       p.Metrics,
		logger:        logger,
	}
}

// Resolve returns the stored solutions for problem, best first. When none exist it asks the
// oracle once, stores the answer with a success count of 0 and returns it. If the oracle fails
// nothing is stored and the configured fallback is returned. Store failures are returned as errors.
func (s *SolutionsService) Resolve(ctx context.Context, problem string) ([]models.Solution, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return nil, huberrors.NewValidationError("problem", "problem is required")
	}

	solutions, err := s.repo.FindByProblem(ctx, problem)
	if err != nil {
		s.recordResolve(ctx, observability.ResolveOutcomeError)

		return nil, fmt.Errorf("resolve: %w", err)
	}

	if len(solutions) > 0 {
		s.recordResolve(ctx, observability.ResolveOutcomeHit)

		return solutions, nil
	}

	// Concurrent misses for the same problem in this process share one oracle call and one insert.
	// The shared call is detached from every caller's cancellation and bounded by the oracle timeout,
	// so a caller that goes away stops waiting while the flight still completes for the others.
	flightCtx := context.WithoutCancel(ctx)

	flight := s.generateGroup.DoChan(problem, func() (any, error) {
		return s.generate(flightCtx, problem)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			s.recordResolve(ctx, observability.ResolveOutcomeError)

			return nil, fmt.Errorf("resolve: %w", res.Err)
		}

		result, _ := res.Val.(generateResult)
		s.recordResolve(ctx, result.outcome)

		return append([]models.Solution{}, result.solutions...), nil
	case <-ctx.Done():
		s.recordResolve(ctx, observability.ResolveOutcomeError)

		return nil, fmt.Errorf("resolve: %w", ctx.Err())
	}
}

type generateResult struct {
	solutions []models.Solution
	outcome   string
}

// generate runs the miss path: re-check the store, ask the oracle, persist on success.
func (s *SolutionsService) generate(ctx context.Context, problem string) (generateResult, error) {
	// A flight that finished just before this one may already have stored a row.
	existing, err := s.repo.FindByProblem(ctx, problem)
	if err != nil {
		return generateResult{}, err
	}

	if len(existing) > 0 {
		return generateResult{solutions: existing, outcome: observability.ResolveOutcomeHit}, nil
	}

	text, err := s.askOracle(ctx, problem)
	if err != nil {
		s.logger.WarnContext(ctx, "oracle failed, returning fallback",
			"provider", s.oracle.Name(),
			"fallback", string(s.fallback),
			"error", err,
		)

		return generateResult{solutions: s.fallbackSolutions(), outcome: observability.ResolveOutcomeFallback}, nil
	}

	created, err := s.repo.Insert(ctx, problem, text)
	if err != nil {
		return generateResult{}, err
	}

	s.logger.InfoContext(ctx, "stored generated solution",
		"solution_id", created.ID,
		"provider", s.oracle.Name(),
	)

	return generateResult{solutions: []models.Solution{*created}, outcome: observability.ResolveOutcomeGenerated}, nil
}

// askOracle makes exactly one oracle call under the rate limiter and timeout.
func (s *SolutionsService) askOracle(ctx context.Context, problem string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	provider := s.oracle.Name()
	start := time.Now()

	ctx, span := observability.StartOracleSpan(ctx, provider)
	finish := func(status string, err error) {
		s.recordOracleCall(ctx, provider, status, time.Since(start))
		observability.EndOracleSpan(span, status, err)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			finish(observability.OracleStatusRateLimited, err)

			return "", huberrors.NewOracleError(provider, "rate limit wait exceeded", err)
		}
	}

	text, err := s.oracle.Complete(ctx, SystemPrompt, fmt.Sprintf(userPromptFormat, problem))
	if err == nil && strings.TrimSpace(text) == "" {
		err = huberrors.NewOracleError(provider, "empty completion", nil)
	}

	if err != nil {
		status := observability.OracleStatusError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = observability.OracleStatusTimeout
		}

		finish(status, err)

		if !errors.Is(err, huberrors.ErrOracle) {
			err = huberrors.NewOracleError(provider, "request failed", err)
		}

		return "", err
	}

	finish(observability.OracleStatusSuccess, nil)

	return strings.TrimSpace(text), nil
}

func (s *SolutionsService) fallbackSolutions() []models.Solution {
	if s.fallback == FallbackEmpty {
		return []models.Solution{}
	}

	return []models.Solution{{
		SolutionText: FallbackSolutionText,
		SuccessCount: 0,
	}}
}

// RecordFeedback adds one success vote per id occurrence. Ids that match no stored solution
// are reported in the result and do not fail the call.
func (s *SolutionsService) RecordFeedback(ctx context.Context, ids []models.SolutionID) (*models.FeedbackResult, error) {
	if len(ids) == 0 {
		return nil, huberrors.NewValidationError("solutionIds", "solutionIds must contain at least one id")
	}

	unknown, err := s.repo.IncrementSuccess(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("record feedback: %w", err)
	}

	result := &models.FeedbackResult{
		Applied:    len(ids) - len(unknown),
		UnknownIDs: unknown,
	}

	if len(unknown) > 0 {
		s.logger.WarnContext(ctx, "feedback referenced unknown solutions", "unknown_solution_ids", unknown)
	}

	if s.metrics != nil {
		s.metrics.RecordFeedback(ctx, result.Applied, len(unknown))
	}

	return result, nil
}

// GetSolution returns one stored solution.
func (s *SolutionsService) GetSolution(ctx context.Context, id models.SolutionID) (*models.Solution, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *SolutionsService) recordResolve(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordResolve(ctx, outcome)
	}
}

func (s *SolutionsService) recordOracleCall(ctx context.Context, provider, status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordOracleCall(ctx, provider, status, d)
	}
}
