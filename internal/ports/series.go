package ports

import (
	"context"
	"time"

	"intradaySync/internal/domain"
)

// SeriesStore persists per-ticker series files on local storage.
type SeriesStore interface {
	// Path returns the local file path for ticker.
	Path(ticker domain.Ticker) string

	// EnsureDir creates the ticker directory if needed.
	EnsureDir(ticker domain.Ticker) error

	// Exists reports whether a series file is present for ticker.
	Exists(ticker domain.Ticker) bool

	// ResumePoint returns the timestamp of the last data row.
	// ok is false when the file is missing, empty or header only. A last line
	// that has no fields or whose timestamp does not parse yields ErrMalformedSeries.
	ResumePoint(ctx context.Context, ticker domain.Ticker) (t time.Time, ok bool, err error)

	// Create writes a new file with header and all batch rows.
	Create(ctx context.Context, ticker domain.Ticker, batch *domain.Batch) (int, error)

	// Append adds batch rows without a header, in the existing file's column order.
	Append(ctx context.Context, ticker domain.Ticker, batch *domain.Batch) (int, error)
}
