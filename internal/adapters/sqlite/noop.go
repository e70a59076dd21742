package sqlite

import (
	"context"

	"intradaySync/internal/domain"
)

// NoopRepository is the ledger used when DB_PATH is empty.
type NoopRepository struct{}

func (NoopRepository) StartRun(ctx context.Context, run *domain.RunRecord) (int64, error) {
	return 0, nil
}

func (NoopRepository) RecordTicker(ctx context.Context, res *domain.TickerResult) error { return nil }

func (NoopRepository) FinishRun(ctx context.Context, run *domain.RunRecord) error { return nil }

func (NoopRepository) RecentRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	return nil, nil
}

func (NoopRepository) TickerHistory(ctx context.Context, ticker domain.Ticker, limit int) ([]*domain.TickerResult, error) {
	return nil, nil
}

func (NoopRepository) Close() error { return nil }
