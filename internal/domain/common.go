package domain

// Ticker is the symbolic identifier of a tradable instrument or index (e.g. "^NSEI", "RELIANCE.NS").
type Ticker string

// ProviderName identifies the upstream market-data source a ticker is fetched from.
type ProviderName string

const (
	ProviderYahoo   ProviderName = "yahoo"
	ProviderBinance ProviderName = "binance"
)

// TickerSpec binds a ticker to the provider that serves it.
type TickerSpec struct {
	Symbol   Ticker       `yaml:"symbol"`
	Provider ProviderName `yaml:"provider"`
}

// FileName returns the series file name used both locally and remotely.
func (t Ticker) FileName() string {
	return string(t) + "_data.csv"
}

// Outcome describes what happened to a single ticker during a collection pass.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"     // New series file written with header
	OutcomeAppended  Outcome = "appended"    // New rows appended to an existing file
	OutcomeNoNewData Outcome = "no_new_data" // Provider returned rows, none newer than the resume point
	OutcomeEmpty     Outcome = "empty"       // Provider returned nothing at all
	OutcomeFailed    Outcome = "failed"      // Fetch, parse or write error; other tickers unaffected
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)
