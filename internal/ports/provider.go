package ports

import (
	"context"
	"time"

	"intradaySync/internal/domain"
)

// MarketDataProvider fetches intraday observations from an upstream source.
type MarketDataProvider interface {
	// Name returns the provider identifier used in configuration and logs.
	Name() domain.ProviderName

	// RetentionWindow is the maximum lookback the provider serves for the
	// configured sampling interval. Older data cannot be requested.
	RetentionWindow() time.Duration

	// Fetch returns observations for ticker as described by req.
	// An empty batch (no rows) is not an error.
	Fetch(ctx context.Context, ticker domain.Ticker, req domain.FetchRequest) (*domain.Batch, error)
}
