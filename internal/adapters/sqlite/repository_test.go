package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var _ ports.RunRepository = (*Repository)(nil)
var _ ports.RunRepository = NoopRepository{}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "nested", "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_RunLifecycle(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 1, 2, 3, 45, 0, 0, time.UTC)

	run := &domain.RunRecord{RunID: "run-1", StartedAt: started, Status: domain.RunStatusRunning, Tickers: 3}
	id, err := repo.StartRun(ctx, run)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, run.ID)

	run.FinishedAt = started.Add(2 * time.Minute)
	run.Status = domain.RunStatusCompleted
	run.Failures = 1
	run.Note = "1 ticker failed"
	require.NoError(t, repo.FinishRun(ctx, run))

	runs, err := repo.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, 3, got.Tickers)
	assert.Equal(t, 1, got.Failures)
	assert.Equal(t, "1 ticker failed", got.Note)
	assert.True(t, started.Equal(got.StartedAt))
	assert.True(t, run.FinishedAt.Equal(got.FinishedAt))
}

func TestRepository_FinishRun_NotFound(t *testing.T) {
	repo := setupTestDB(t)
	err := repo.FinishRun(context.Background(), &domain.RunRecord{RunID: "missing", Status: domain.RunStatusAborted})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_StartRun_DuplicateRunID(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	run := &domain.RunRecord{RunID: "dup", StartedAt: time.Now(), Status: domain.RunStatusRunning}
	_, err := repo.StartRun(ctx, run)
	require.NoError(t, err)
	_, err = repo.StartRun(ctx, run)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
}

func TestRepository_RecentRuns_OrderAndLimit(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		_, err := repo.StartRun(ctx, &domain.RunRecord{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), Status: domain.RunStatusRunning})
		require.NoError(t, err)
	}

	runs, err := repo.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	assert.True(t, runs[0].FinishedAt.IsZero())
}

func TestRepository_TickerHistory(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	results := []*domain.TickerResult{
		{RunID: "r1", Ticker: "^NSEI", Provider: domain.ProviderYahoo, Outcome: domain.OutcomeCreated, RowsWritten: 75, LastRow: base, RecordedAt: base},
		{RunID: "r1", Ticker: "TCS.NS", Provider: domain.ProviderYahoo, Outcome: domain.OutcomeFailed, Error: "boom", RecordedAt: base},
		{RunID: "r2", Ticker: "^NSEI", Provider: domain.ProviderYahoo, Outcome: domain.OutcomeNoNewData, ResumePoint: base, RecordedAt: base.Add(time.Hour)},
	}
	for _, r := range results {
		require.NoError(t, repo.RecordTicker(ctx, r))
	}

	history, err := repo.TickerHistory(ctx, "^NSEI", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "r2", history[0].RunID)
	assert.Equal(t, domain.OutcomeNoNewData, history[0].Outcome)
	assert.True(t, base.Equal(history[0].ResumePoint))
	assert.True(t, history[0].LastRow.IsZero())

	assert.Equal(t, "r1", history[1].RunID)
	assert.Equal(t, domain.OutcomeCreated, history[1].Outcome)
	assert.Equal(t, 75, history[1].RowsWritten)
	assert.True(t, history[1].ResumePoint.IsZero())
	assert.True(t, base.Equal(history[1].LastRow))

	failed, err := repo.TickerHistory(ctx, "TCS.NS", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Failed())
	assert.Equal(t, "boom", failed[0].Error)
}

func TestNoopRepository(t *testing.T) {
	ctx := context.Background()
	var repo ports.RunRepository = NoopRepository{}
	id, err := repo.StartRun(ctx, &domain.RunRecord{RunID: "x"})
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.NoError(t, repo.RecordTicker(ctx, &domain.TickerResult{}))
	assert.NoError(t, repo.FinishRun(ctx, &domain.RunRecord{}))
	runs, err := repo.RecentRuns(ctx, 5)
	assert.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, repo.Close())
}
