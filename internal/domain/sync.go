package domain

import "time"

// BlobRef identifies an object in remote storage.
type BlobRef struct {
	ID   string
	Name string
}

// RunRecord is the ledger entry for one pipeline invocation.
type RunRecord struct {
	ID         int64
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Tickers    int
	Failures   int
	Note       string
}

// TickerResult is the ledger entry for one ticker inside a run.
type TickerResult struct {
	RunID       string
	Ticker      Ticker
	Provider    ProviderName
	Outcome     Outcome
	RowsWritten int
	ResumePoint time.Time // Zero when the file had no resume point
	LastRow     time.Time // Zero when nothing was written
	Error       string
	RecordedAt  time.Time
}

// Failed reports whether the ticker failed during the run.
func (r TickerResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}
