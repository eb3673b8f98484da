package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/fixdesk/hub/internal/huberrors"
	"github.com/fixdesk/hub/internal/models"
	"github.com/fixdesk/hub/internal/observability"
)

// MockSolutionsRepository is a mock implementation of SolutionsRepository
type MockSolutionsRepository struct {
	mock.Mock
}

func (m *MockSolutionsRepository) FindByProblem(ctx context.Context, problem string) ([]models.Solution, error) {
	args := m.Called(ctx, problem)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Solution), args.Error(1)
}

func (m *MockSolutionsRepository) Insert(ctx context.Context, problem, solutionText string) (*models.Solution, error) {
	args := m.Called(ctx, problem, solutionText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Solution), args.Error(1)
}

func (m *MockSolutionsRepository) GetByID(ctx context.Context, id models.SolutionID) (*models.Solution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Solution), args.Error(1)
}

func (m *MockSolutionsRepository) IncrementSuccess(ctx context.Context, ids []models.SolutionID) ([]models.SolutionID, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.SolutionID), args.Error(1)
}

type mockOracle struct {
	calls        atomic.Int32
	completeFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func (o *mockOracle) Name() string { return "openai" }

func (o *mockOracle) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	o.calls.Add(1)

	if o.completeFunc != nil {
		return o.completeFunc(ctx, systemPrompt, userPrompt)
	}

	return "Restart the device.", nil
}

func failingOracle(err error) *mockOracle {
	return &mockOracle{completeFunc: func(context.Context, string, string) (string, error) {
		return "", err
	}}
}

type recordedOracleCall struct {
	provider string
	status   string
}

type fakeResolverMetrics struct {
	mu          sync.Mutex
	resolves    []string
	oracleCalls []recordedOracleCall
	applied     int
	unknown     int
}

func (f *fakeResolverMetrics) RecordResolve(_ context.Context, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolves = append(f.resolves, outcome)
}

func (f *fakeResolverMetrics) RecordOracleCall(_ context.Context, provider, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.oracleCalls = append(f.oracleCalls, recordedOracleCall{provider: provider, status: status})
}

func (f *fakeResolverMetrics) RecordFeedback(_ context.Context, applied, unknown int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applied += applied
	f.unknown += unknown
}

// memStore is an in-memory SolutionsRepository with the same ordering and
// all-or-nothing feedback semantics as the Postgres repository.
type memStore struct {
	mu      sync.Mutex
	rows    []models.Solution
	nextID  models.SolutionID
	inserts int
}

func (s *memStore) seed(problem, text string, count int64) models.SolutionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.rows = append(s.rows, models.Solution{ID: &id, ProblemDescription: problem, SolutionText: text, SuccessCount: count})

	return id
}

func (s *memStore) FindByProblem(_ context.Context, problem string) ([]models.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Solution{}

	for _, row := range s.rows {
		if row.ProblemDescription == problem {
			out = append(out, row)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].SuccessCount > out[j].SuccessCount })

	return out, nil
}

func (s *memStore) Insert(_ context.Context, problem, text string) (*models.Solution, error) {
	s.mu.Lock()
	s.inserts++
	s.mu.Unlock()

	id := s.seed(problem, text, 0)

	return &models.Solution{ID: &id, ProblemDescription: problem, SolutionText: text}, nil
}

func (s *memStore) GetByID(_ context.Context, id models.SolutionID) (*models.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if *row.ID == id {
			return &row, nil
		}
	}

	return nil, huberrors.NewNotFoundError("solution", "solution not found")
}

func (s *memStore) IncrementSuccess(_ context.Context, ids []models.SolutionID) ([]models.SolutionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unknown := []models.SolutionID{}

	for _, id := range ids {
		found := false

		for i := range s.rows {
			if *s.rows[i].ID == id {
				s.rows[i].SuccessCount++
				found = true
			}
		}

		if !found {
			unknown = append(unknown, id)
		}
	}

	return unknown, nil
}

func (s *memStore) count(id models.SolutionID) int64 {
	sol, _ := s.GetByID(context.Background(), id)
	if sol == nil {
		return -1
	}

	return sol.SuccessCount
}

func idPtr(n int64) *models.SolutionID {
	id := models.SolutionID(n)

	return &id
}

func TestSolutionsService_Resolve_Validation(t *testing.T) {
	for _, problem := range []string{"", "   ", "\n\t"} {
		repo := new(MockSolutionsRepository)
		oracle := &mockOracle{}
		svc := NewSolutionsService(SolutionsServiceParams{Repo: repo, Oracle: oracle})

		got, err := svc.Resolve(context.Background(), problem)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, huberrors.ErrValidation)
		repo.AssertNotCalled(t, "FindByProblem", mock.Anything, mock.Anything)
		assert.Zero(t, oracle.calls.Load())
	}
}

func TestSolutionsService_Resolve_StoredSolutions(t *testing.T) {
	repo := new(MockSolutionsRepository)
	oracle := &mockOracle{}
	metrics := &fakeResolverMetrics{}
	svc := NewSolutionsService(SolutionsServiceParams{Repo: repo, Oracle: oracle, Metrics: metrics})

	stored := []models.Solution{
		{ID: idPtr(2), SolutionText: "Reinstall the GPU driver.", SuccessCount: 7},
		{ID: idPtr(1), SolutionText: "Run a memory test.", SuccessCount: 3},
	}
	repo.On("FindByProblem", mock.Anything, "blue screen").Return(stored, nil)

	got, err := svc.Resolve(context.Background(), "  blue screen ")
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	assert.Zero(t, oracle.calls.Load())
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNumberOfCalls(t, "FindByProblem", 1)
	assert.Equal(t, []string{observability.ResolveOutcomeHit}, metrics.resolves)
}

func TestSolutionsService_Resolve_GeneratesAndStores(t *testing.T) {
	repo := new(MockSolutionsRepository)
	metrics := &fakeResolverMetrics{}
	oracle := &mockOracle{completeFunc: func(_ context.Context, systemPrompt, userPrompt string) (string, error) {
		assert.Equal(t, SystemPrompt, systemPrompt)
		assert.Equal(t, "How can I fix this issue? printer offline", userPrompt)

		return "  **Restart** the print spooler.\nThen power-cycle the printer.  ", nil
	}}
	svc := NewSolutionsService(SolutionsServiceParams{Repo: repo, Oracle: oracle, Metrics: metrics})

	text := "**Restart** the print spooler.\nThen power-cycle the printer."
	created := &models.Solution{ID: idPtr(11), ProblemDescription: "printer offline", SolutionText: text}

	repo.On("FindByProblem", mock.Anything, "printer offline").Return([]models.Solution{}, nil)
	repo.On("Insert", mock.Anything, "printer offline", text).Return(created, nil).Once()

	got, err := svc.Resolve(context.Background(), "printer offline")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, idPtr(11), got[0].ID)
	assert.Equal(t, text, got[0].SolutionText)
	assert.Zero(t, got[0].SuccessCount)
	assert.Equal(t, int32(1), oracle.calls.Load())
	repo.AssertNumberOfCalls(t, "Insert", 1)
	assert.Equal(t, []string{observability.ResolveOutcomeGenerated}, metrics.resolves)
	assert.Equal(t, []recordedOracleCall{{"openai", observability.OracleStatusSuccess}}, metrics.oracleCalls)
}

func TestSolutionsService_Resolve_OracleFailure(t *testing.T) {
	tests := []struct {
		name     string
		oracle   *mockOracle
		fallback FallbackMode
		want     []models.Solution
	}{
		{
			name:     "transport error with message fallback",
			oracle:   failingOracle(errors.New("connection refused")),
			fallback: FallbackMessage,
			want:     []models.Solution{{SolutionText: FallbackSolutionText}},
		},
		{
			name:     "transport error with empty fallback",
			oracle:   failingOracle(errors.New("connection refused")),
			fallback: FallbackEmpty,
			want:     []models.Solution{},
		},
		{
			name:     "blank completion",
			oracle:   &mockOracle{completeFunc: func(context.Context, string, string) (string, error) { return " \n ", nil }},
			fallback: FallbackMessage,
			want:     []models.Solution{{SolutionText: FallbackSolutionText}},
		},
		{
			name:   "default fallback is message",
			oracle: failingOracle(huberrors.NewOracleError("openai", "malformed response", nil)),
			want:   []models.Solution{{SolutionText: FallbackSolutionText}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockSolutionsRepository)
			metrics := &fakeResolverMetrics{}
			svc := NewSolutionsService(SolutionsServiceParams{
				Repo: repo, Oracle: tt.oracle, Fallback: tt.fallback, Metrics: metrics,
			})

			repo.On("FindByProblem", mock.Anything, "no sound").Return([]models.Solution{}, nil)

			got, err := svc.Resolve(context.Background(), "no sound")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			for _, s := range got {
				assert.False(t, s.IsPersisted())
			}

			assert.Equal(t, int32(1), tt.oracle.calls.Load())
			repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, []string{observability.ResolveOutcomeFallback}, metrics.resolves)
		})
	}
}

func TestSolutionsService_Resolve_OracleTimeout(t *testing.T) {
	repo := new(MockSolutionsRepository)
	metrics := &fakeResolverMetrics{}
	oracle := &mockOracle{completeFunc: func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()

		return "", ctx.Err()
	}}
	svc := NewSolutionsService(SolutionsServiceParams{
		Repo: repo, Oracle: oracle, OracleTimeout: 20 * time.Millisecond, Metrics: metrics,
	})

	repo.On("FindByProblem", mock.Anything, "slow wifi").Return([]models.Solution{}, nil)

	start := time.Now()
	got, err := svc.Resolve(context.Background(), "slow wifi")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []models.Solution{{SolutionText: FallbackSolutionText}}, got)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []recordedOracleCall{{"openai", observability.OracleStatusTimeout}}, metrics.oracleCalls)
}

func TestSolutionsService_Resolve_RateLimited(t *testing.T) {
	repo := new(MockSolutionsRepository)
	metrics := &fakeResolverMetrics{}
	oracle := &mockOracle{}

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())

	svc := NewSolutionsService(SolutionsServiceParams{
		Repo: repo, Oracle: oracle, Limiter: limiter, OracleTimeout: 50 * time.Millisecond, Metrics: metrics,
	})

	repo.On("FindByProblem", mock.Anything, "vpn drops").Return([]models.Solution{}, nil)

	got, err := svc.Resolve(context.Background(), "vpn drops")
	require.NoError(t, err)
	assert.Equal(t, []models.Solution{{SolutionText: FallbackSolutionText}}, got)
	assert.Zero(t, oracle.calls.Load())
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []recordedOracleCall{{"openai", observability.OracleStatusRateLimited}}, metrics.oracleCalls)
}

func TestSolutionsService_Resolve_StoreErrors(t *testing.T) {
	t.Run("read failure is not an empty result", func(t *testing.T) {
		repo := new(MockSolutionsRepository)
		oracle := &mockOracle{}
		svc := NewSolutionsService(SolutionsServiceParams{Repo: repo, Oracle: oracle})

		repo.On("FindByProblem", mock.Anything, "disk full").
			Return(nil, huberrors.NewStoreReadError(errors.New("connection reset")))

		got, err := svc.Resolve(context.Background(), "disk full")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, huberrors.ErrStoreRead)
		assert.Zero(t, oracle.calls.Load())
	})

	t.Run("insert failure after oracle success", func(t *testing.T) {
		repo := new(MockSolutionsRepository)
		oracle := &mockOracle{}
		metrics := &fakeResolverMetrics{}
		svc := NewSolutionsService(SolutionsServiceParams{Repo: repo, Oracle: oracle, Metrics: metrics})

		repo.On("FindByProblem", mock.Anything, "disk full").Return([]models.Solution{}, nil)
		repo.On("Insert", mock.Anything, "disk full", "Restart the device.").
			Return(nil, huberrors.NewStoreWriteError(errors.New("read-only transaction")))

		got, err := svc.Resolve(context.Background(), "disk full")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, huberrors.ErrStoreWrite)
		assert.Equal(t, int32(1), oracle.calls.Load())
		assert.Equal(t, []string{observability.ResolveOutcomeError}, metrics.resolves)
	})
}

func TestSolutionsService_Resolve_CoalescesConcurrentMisses(t *testing.T) {
	store := &memStore{}
	release := make(chan struct{})
	oracle := &mockOracle{completeFunc: func(context.Context, string, string) (string, error) {
		<-release

		return "Update the firmware.", nil
	}}
	svc := NewSolutionsService(SolutionsServiceParams{Repo: store, Oracle: oracle})

	const callers = 10

	var wg sync.WaitGroup

	results := make([][]models.Solution, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			results[i], errs[i] = svc.Resolve(context.Background(), "router reboots")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		require.Len(t, results[i], 1)
		assert.Equal(t, "Update the firmware.", results[i][0].SolutionText)
	}

	assert.Equal(t, int32(1), oracle.calls.Load())
	assert.Equal(t, 1, store.inserts)
}

func TestSolutionsService_Resolve_CallerCancelledWhileWaiting(t *testing.T) {
	store := &memStore{}
	metrics := &fakeResolverMetrics{}
	started := make(chan struct{})
	release := make(chan struct{})
	oracle := &mockOracle{completeFunc: func(context.Context, string, string) (string, error) {
		close(started)
		<-release

		return "Reseat the memory modules.", nil
	}}
	svc := NewSolutionsService(SolutionsServiceParams{
		Repo: store, Oracle: oracle, OracleTimeout: 10 * time.Second, Metrics: metrics,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		_, err := svc.Resolve(ctx, "random reboots")
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Resolve kept waiting after its context was cancelled")
	}

	// The shared generation still completes and stores the answer.
	close(release)
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()

		return len(store.rows) == 1
	}, 5*time.Second, 10*time.Millisecond)

	got, err := svc.Resolve(context.Background(), "random reboots")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Reseat the memory modules.", got[0].SolutionText)
	assert.Equal(t, int32(1), oracle.calls.Load())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	assert.Equal(t, []string{observability.ResolveOutcomeError, observability.ResolveOutcomeHit}, metrics.resolves)
}

func TestSolutionsService_RecordFeedback(t *testing.T) {
	t.Run("empty list touches nothing", func(t *testing.T) {
		repo := new(MockSolutionsRepository)
		svc := NewSolutionsService(SolutionsServiceParams{Repo: repo, Oracle: &mockOracle{}})

		for _, ids := range [][]models.SolutionID{nil, {}} {
			got, err := svc.RecordFeedback(context.Background(), ids)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, huberrors.ErrValidation)
		}

		repo.AssertNotCalled(t, "IncrementSuccess", mock.Anything, mock.Anything)
	})

	t.Run("duplicates count twice and unknown ids are warnings", func(t *testing.T) {
		store := &memStore{}
		metrics := &fakeResolverMetrics{}
		svc := NewSolutionsService(SolutionsServiceParams{Repo: store, Oracle: &mockOracle{}, Metrics: metrics})

		a := store.seed("no sound", "Unmute the output device.", 0)
		b := store.seed("no sound", "Reinstall the audio driver.", 4)

		got, err := svc.RecordFeedback(context.Background(), []models.SolutionID{a, a, b, 999})
		require.NoError(t, err)
		assert.Equal(t, 3, got.Applied)
		assert.Equal(t, []models.SolutionID{999}, got.UnknownIDs)
		assert.Equal(t, int64(2), store.count(a))
		assert.Equal(t, int64(5), store.count(b))
		assert.Equal(t, 3, metrics.applied)
		assert.Equal(t, 1, metrics.unknown)
	})

	t.Run("non-positive ids are unknown and the rest still apply", func(t *testing.T) {
		store := &memStore{}
		svc := NewSolutionsService(SolutionsServiceParams{Repo: store, Oracle: &mockOracle{}})

		a := store.seed("no sound", "Unmute the output device.", 0)

		got, err := svc.RecordFeedback(context.Background(), []models.SolutionID{a, 0, -1})
		require.NoError(t, err)
		assert.Equal(t, 1, got.Applied)
		assert.Equal(t, []models.SolutionID{0, -1}, got.UnknownIDs)
		assert.Equal(t, int64(1), store.count(a))
	})

	t.Run("store failure propagates", func(t *testing.T) {
		repo := new(MockSolutionsRepository)
		svc := NewSolutionsService(SolutionsServiceParams{Repo: repo, Oracle: &mockOracle{}})

		ids := []models.SolutionID{1, 2}
		repo.On("IncrementSuccess", mock.Anything, ids).
			Return(nil, huberrors.NewStoreWriteError(errors.New("deadlock detected")))

		got, err := svc.RecordFeedback(context.Background(), ids)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, huberrors.ErrStoreWrite)
	})
}

func TestSolutionsService_GetSolution(t *testing.T) {
	store := &memStore{}
	svc := NewSolutionsService(SolutionsServiceParams{Repo: store, Oracle: &mockOracle{}})

	id := store.seed("no sound", "Unmute the output device.", 2)

	got, err := svc.GetSolution(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Unmute the output device.", got.SolutionText)

	_, err = svc.GetSolution(context.Background(), id+100)
	assert.ErrorIs(t, err, huberrors.ErrNotFound)
}

func TestSolutionsService_PrinterOfflineScenario(t *testing.T) {
	store := &memStore{}
	oracle := &mockOracle{completeFunc: func(context.Context, string, string) (string, error) {
		return "Set the printer back **online** from the print queue.", nil
	}}
	svc := NewSolutionsService(SolutionsServiceParams{Repo: store, Oracle: oracle})
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "printer offline")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.True(t, first[0].IsPersisted())
	assert.Zero(t, first[0].SuccessCount)

	second, err := svc.Resolve(ctx, "printer offline")
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, int32(1), oracle.calls.Load())
	assert.Equal(t, 1, store.inserts)

	_, err = svc.RecordFeedback(ctx, []models.SolutionID{*first[0].ID})
	require.NoError(t, err)

	third, err := svc.Resolve(ctx, "printer offline")
	require.NoError(t, err)
	assert.Equal(t, int64(1), third[0].SuccessCount)
}

func TestSolutionsService_BlueScreenScenario(t *testing.T) {
	store := &memStore{}
	oracle := &mockOracle{}
	svc := NewSolutionsService(SolutionsServiceParams{Repo: store, Oracle: oracle})
	ctx := context.Background()

	memTest := store.seed("blue screen", "Run a memory test.", 3)
	driver := store.seed("blue screen", "Reinstall the GPU driver.", 7)

	got, err := svc.Resolve(ctx, "blue screen")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, driver, *got[0].ID)
	assert.Equal(t, memTest, *got[1].ID)

	votes := make([]models.SolutionID, 5)
	for i := range votes {
		votes[i] = memTest
	}

	_, err = svc.RecordFeedback(ctx, votes)
	require.NoError(t, err)

	got, err = svc.Resolve(ctx, "blue screen")
	require.NoError(t, err)
	assert.Equal(t, memTest, *got[0].ID)
	assert.Equal(t, int64(8), got[0].SuccessCount)
	assert.Zero(t, oracle.calls.Load())
	assert.Zero(t, store.inserts)

	// Lookup is exact: a differently worded problem is a miss.
	other, err := svc.Resolve(ctx, "Blue Screen")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.True(t, strings.Contains(other[0].SolutionText, "Restart"))
	assert.Equal(t, int32(1), oracle.calls.Load())
}
