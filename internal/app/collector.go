package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intradaySync/config"
	"intradaySync/internal/domain"
	"intradaySync/internal/ports"
)

// retentionSafetyMargin keeps incremental requests clear of the provider's
// hard lookback edge.
const retentionSafetyMargin = 24 * time.Hour

// Collector brings every local series file up to date with its provider.
// It only touches local storage.
type Collector struct {
	cfg       *config.Config
	logger    ports.Logger
	store     ports.SeriesStore
	providers map[domain.ProviderName]ports.MarketDataProvider
	now       func() time.Time
}

// NewCollector creates a collector over store using one provider per provider name.
func NewCollector(
	cfg *config.Config,
	logger ports.Logger,
	store ports.SeriesStore,
	providers ...ports.MarketDataProvider,
) (*Collector, error) {
	if cfg == nil || logger == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for Collector")
	}
	if cfg.Location == nil {
		return nil, fmt.Errorf("%w: display timezone is not resolved", ports.ErrConfigurationError)
	}
	byName := make(map[domain.ProviderName]ports.MarketDataProvider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		byName[p.Name()] = p
	}
	if len(byName) == 0 {
		return nil, fmt.Errorf("%w: no market data provider configured", ports.ErrConfigurationError)
	}
	return &Collector{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		providers: byName,
		now:       time.Now,
	}, nil
}

// Run collects every ticker in order. A failing ticker is recorded and the
// rest still run. Results line up with specs.
func (c *Collector) Run(ctx context.Context, specs []domain.TickerSpec) []domain.TickerResult {
	c.logger.Info(ctx, "Starting collection", map[string]interface{}{"tickers": len(specs), "interval": c.cfg.Interval})

	results := make([]domain.TickerResult, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			results = append(results, c.failed(ctx, spec, time.Time{}, fmt.Errorf("collection interrupted: %w", err)))
			continue
		}
		results = append(results, c.CollectTicker(ctx, spec))
	}

	summary := map[string]interface{}{}
	for _, r := range results {
		key := string(r.Outcome)
		n, _ := summary[key].(int)
		summary[key] = n + 1
	}
	c.logger.Info(ctx, "Collection finished", summary)
	return results
}

// CollectTicker runs resume point, plan, fetch, reconcile and persist for one ticker.
// A panic in a provider or the store is recovered into a failed result.
func (c *Collector) CollectTicker(ctx context.Context, spec domain.TickerSpec) (result domain.TickerResult) {
	defer func() {
		if r := recover(); r != nil {
			result = c.failed(ctx, spec, time.Time{}, fmt.Errorf("panic while collecting %s: %v", spec.Symbol, r))
		}
	}()

	ticker := spec.Symbol
	fields := map[string]interface{}{"ticker": string(ticker), "file": c.store.Path(ticker)}

	provider, ok := c.providers[spec.Provider]
	if !ok {
		return c.failed(ctx, spec, time.Time{}, fmt.Errorf("%w: no provider %q for %s", ports.ErrConfigurationError, spec.Provider, ticker))
	}

	since, found, err := c.ResumePoint(ctx, ticker)
	if err != nil {
		return c.failed(ctx, spec, time.Time{}, err)
	}
	if found {
		fields["resumePoint"] = since.Format(time.RFC3339)
		c.logger.Info(ctx, "Resuming series", fields)
	} else {
		c.logger.Info(ctx, "No resume point, fetching full window", fields)
	}

	req := c.PlanFetch(since, c.now(), provider.RetentionWindow())
	if found && req.IsMaxWindow() {
		c.logger.Warn(ctx, "Resume point is older than the provider retention window, data in between cannot be recovered", map[string]interface{}{
			"ticker":      string(ticker),
			"resumePoint": since.Format(time.RFC3339),
			"retention":   provider.RetentionWindow().String(),
		})
	}

	batch, err := c.Fetch(ctx, provider, ticker, req)
	if err != nil {
		return c.failed(ctx, spec, since, err)
	}

	result = domain.TickerResult{
		Ticker:      ticker,
		Provider:    spec.Provider,
		ResumePoint: since,
		RecordedAt:  c.now(),
	}

	if batch.IsEmpty() {
		c.logger.Warn(ctx, "Provider returned no data, leaving series untouched", fields)
		result.Outcome = domain.OutcomeEmpty
		return result
	}

	fresh := c.Reconcile(since, batch)
	if fresh.IsEmpty() {
		c.logger.Info(ctx, "No new data", fields)
		result.Outcome = domain.OutcomeNoNewData
		return result
	}

	n, err := c.Persist(ctx, ticker, fresh, found)
	if err != nil {
		return c.failed(ctx, spec, since, err)
	}
	result.RowsWritten = n
	result.LastRow = fresh.Last()
	if found {
		result.Outcome = domain.OutcomeAppended
	} else {
		result.Outcome = domain.OutcomeCreated
	}
	c.logger.Info(ctx, "Series updated", map[string]interface{}{
		"ticker":  string(ticker),
		"outcome": string(result.Outcome),
		"rows":    n,
		"lastRow": result.LastRow.Format(time.RFC3339),
	})
	return result
}

// ResumePoint returns the last persisted timestamp for ticker.
func (c *Collector) ResumePoint(ctx context.Context, ticker domain.Ticker) (time.Time, bool, error) {
	since, ok, err := c.store.ResumePoint(ctx, ticker)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("resume point for %s: %w", ticker, err)
	}
	return since, ok, nil
}

// PlanFetch decides what to request. A zero since, or one past the safe
// retention limit, asks for the full window; otherwise rows are requested
// from the calendar date of since in its own zone.
func (c *Collector) PlanFetch(since, now time.Time, retention time.Duration) domain.FetchRequest {
	req := domain.FetchRequest{Interval: c.cfg.Interval, End: now}
	safe := retention - retentionSafetyMargin
	if safe <= 0 {
		safe = retention
	}
	if since.IsZero() || since.UTC().Before(now.UTC().Add(-safe)) {
		req.Period = retention
		return req
	}
	req.Start = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())
	return req
}

// Fetch calls provider and returns the batch expressed in the display timezone
// with single-level columns.
func (c *Collector) Fetch(ctx context.Context, provider ports.MarketDataProvider, ticker domain.Ticker, req domain.FetchRequest) (*domain.Batch, error) {
	batch, err := provider.Fetch(ctx, ticker, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", ticker, provider.Name(), err)
	}
	if batch == nil {
		return &domain.Batch{Ticker: ticker}, nil
	}
	local := batch.InLocation(c.cfg.Location)
	local.Flatten()
	return local, nil
}

// Reconcile keeps rows strictly after since, sorted and without duplicate
// timestamps. A zero since keeps everything.
func (c *Collector) Reconcile(since time.Time, batch *domain.Batch) *domain.Batch {
	fresh := batch
	if !since.IsZero() {
		fresh = batch.After(since)
	}
	fresh.Normalize()
	return fresh
}

// Persist appends to the existing series or creates it with a header.
func (c *Collector) Persist(ctx context.Context, ticker domain.Ticker, batch *domain.Batch, appendRows bool) (int, error) {
	var (
		n   int
		err error
	)
	if appendRows {
		n, err = c.store.Append(ctx, ticker, batch)
	} else {
		n, err = c.store.Create(ctx, ticker, batch)
	}
	if err != nil {
		return 0, fmt.Errorf("persist %s: %w", ticker, err)
	}
	return n, nil
}

// Hold records ticker as failed without touching its series, because its
// remote state could not be read.
func (c *Collector) Hold(ctx context.Context, spec domain.TickerSpec, cause error) domain.TickerResult {
	return c.failed(ctx, spec, time.Time{}, fmt.Errorf("%w: remote copy of %s unreadable, skipped this run: %w", ports.ErrRemoteUnavailable, spec.Symbol, cause))
}

func (c *Collector) failed(ctx context.Context, spec domain.TickerSpec, since time.Time, err error) domain.TickerResult {
	fields := map[string]interface{}{"ticker": string(spec.Symbol), "file": c.store.Path(spec.Symbol)}
	if errors.Is(err, ports.ErrMalformedSeries) {
		fields["hint"] = "inspect or remove the series file; it is left untouched"
	}
	c.logger.Error(ctx, err, "Ticker failed, continuing with the rest", fields)
	return domain.TickerResult{
		Ticker:      spec.Symbol,
		Provider:    spec.Provider,
		Outcome:     domain.OutcomeFailed,
		ResumePoint: since,
		Error:       err.Error(),
		RecordedAt:  c.now(),
	}
}
