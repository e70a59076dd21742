package ports

import (
	"context"

	"intradaySync/internal/domain"
)

// RunRepository records pipeline runs and per-ticker outcomes.
type RunRepository interface {
	// StartRun saves a new run in the running state and returns its row ID.
	StartRun(ctx context.Context, run *domain.RunRecord) (int64, error)
	// RecordTicker saves the outcome of one ticker within a run.
	RecordTicker(ctx context.Context, result *domain.TickerResult) error
	// FinishRun marks a run completed or aborted and stores its totals.
	FinishRun(ctx context.Context, run *domain.RunRecord) error
	// RecentRuns returns the latest runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error)
	// TickerHistory returns the latest results for ticker, newest first.
	TickerHistory(ctx context.Context, ticker domain.Ticker, limit int) ([]*domain.TickerResult, error)
	// Close releases underlying resources.
	Close() error
}
