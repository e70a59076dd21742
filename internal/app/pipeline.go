package app

import (
	"context"
	"fmt"
	"time"

	"intradaySync/config"
	"intradaySync/internal/domain"
	"intradaySync/internal/ports"

	"github.com/google/uuid"
)

// Pipeline runs download, collect and upload in sequence and records the
// run in the ledger.
type Pipeline struct {
	cfg       *config.Config
	logger    ports.Logger
	collector *Collector
	sync      *Sync // nil when no remote session could be built
	ledger    ports.RunRepository
	now       func() time.Time
	newRunID  func() string
}

// NewPipeline creates a pipeline. sync may be nil, in which case the run is
// local only.
func NewPipeline(
	cfg *config.Config,
	logger ports.Logger,
	collector *Collector,
	sync *Sync,
	ledger ports.RunRepository,
) (*Pipeline, error) {
	if cfg == nil || logger == nil || collector == nil || ledger == nil {
		return nil, fmt.Errorf("missing required dependencies for Pipeline")
	}
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		sync:      sync,
		ledger:    ledger,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}, nil
}

// Run executes one full pass. Per-ticker and per-file failures are logged
// and recorded; only a fatal remote session failure or cancellation returns
// an error.
func (p *Pipeline) Run(ctx context.Context) (*domain.RunRecord, error) {
	run := &domain.RunRecord{
		RunID:     p.newRunID(),
		StartedAt: p.now(),
		Status:    domain.RunStatusRunning,
		Tickers:   len(p.cfg.Tickers),
	}
	fields := map[string]interface{}{"runID": run.RunID, "tickers": run.Tickers}
	p.logger.Info(ctx, "Sync run started", fields)
	if _, err := p.ledger.StartRun(ctx, run); err != nil {
		p.logger.Warn(ctx, "Run ledger unavailable", map[string]interface{}{"runID": run.RunID, "error": err.Error()})
	}

	remote, err := p.connect(ctx)
	if err != nil {
		return p.abort(ctx, run, err)
	}

	var unreadable map[domain.Ticker]error
	if remote {
		stats, err := p.sync.DownloadAll(ctx, p.cfg.Symbols())
		if err != nil {
			return p.abort(ctx, run, err)
		}
		unreadable = stats.Errors
		p.logger.Info(ctx, "Download phase finished", statsFields(run.RunID, stats))
	}

	// A ticker whose remote copy could not be read is neither collected nor
	// uploaded, so a partial local file never replaces remote history.
	active := make([]domain.TickerSpec, 0, len(p.cfg.Tickers))
	var results []domain.TickerResult
	for _, spec := range p.cfg.Tickers {
		if cause, ok := unreadable[spec.Symbol]; ok {
			results = append(results, p.collector.Hold(ctx, spec, cause))
			continue
		}
		active = append(active, spec)
	}
	results = append(results, p.collector.Run(ctx, active)...)
	for i := range results {
		results[i].RunID = run.RunID
		if results[i].Failed() {
			run.Failures++
		}
		if err := p.ledger.RecordTicker(ctx, &results[i]); err != nil {
			p.logger.Warn(ctx, "Failed to record ticker result", map[string]interface{}{"ticker": string(results[i].Ticker), "error": err.Error()})
		}
	}
	if err := ctx.Err(); err != nil {
		return p.abort(ctx, run, err)
	}

	if remote {
		symbols := make([]domain.Ticker, len(active))
		for i, spec := range active {
			symbols[i] = spec.Symbol
		}
		stats, err := p.sync.UploadAll(ctx, symbols)
		if err != nil {
			return p.abort(ctx, run, err)
		}
		p.logger.Info(ctx, "Upload phase finished", statsFields(run.RunID, stats))
	} else {
		run.Note = "local only, remote sync skipped"
	}

	run.Status = domain.RunStatusCompleted
	run.FinishedAt = p.now()
	p.finish(ctx, run)
	p.logger.Info(ctx, "Sync run finished", map[string]interface{}{
		"runID":    run.RunID,
		"failures": run.Failures,
		"duration": run.FinishedAt.Sub(run.StartedAt).String(),
	})
	return run, nil
}

// connect reports whether remote sync should run. A failed session is fatal
// unless the configuration allows local-only runs.
func (p *Pipeline) connect(ctx context.Context) (bool, error) {
	if p.sync == nil {
		if p.cfg.RequireRemote {
			return false, fmt.Errorf("%w: remote storage is not configured", ports.ErrAuthenticationFailed)
		}
		p.logger.Warn(ctx, "Remote storage not configured, collecting locally only")
		return false, nil
	}
	if err := p.sync.Connect(ctx); err != nil {
		if p.cfg.RequireRemote {
			return false, err
		}
		p.logger.Warn(ctx, "Remote session failed, collecting locally only", map[string]interface{}{"error": err.Error()})
		return false, nil
	}
	return true, nil
}

func (p *Pipeline) abort(ctx context.Context, run *domain.RunRecord, cause error) (*domain.RunRecord, error) {
	run.Status = domain.RunStatusAborted
	run.FinishedAt = p.now()
	run.Note = cause.Error()
	p.finish(context.WithoutCancel(ctx), run)
	p.logger.Error(ctx, cause, "Sync run aborted", map[string]interface{}{"runID": run.RunID})
	return run, cause
}

func (p *Pipeline) finish(ctx context.Context, run *domain.RunRecord) {
	if err := p.ledger.FinishRun(ctx, run); err != nil {
		p.logger.Warn(ctx, "Failed to record run completion", map[string]interface{}{"runID": run.RunID, "error": err.Error()})
	}
}

func statsFields(runID string, s SyncStats) map[string]interface{} {
	return map[string]interface{}{
		"runID":       runID,
		"transferred": s.Transferred,
		"missing":     s.Missing,
		"failed":      s.Failed,
	}
}
