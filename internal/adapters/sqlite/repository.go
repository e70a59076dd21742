package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.RunRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/sync_runs.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("%w: failed to create data directory '%s': %w", ports.ErrDBConnection, filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Debug(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP DEFAULT NULL,
		status TEXT NOT NULL,
		tickers INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS ticker_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		provider TEXT NOT NULL,
		outcome TEXT NOT NULL,
		rows_written INTEGER NOT NULL DEFAULT 0,
		resume_point TIMESTAMP DEFAULT NULL,
		last_row TIMESTAMP DEFAULT NULL,
		error TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs (started_at);
	CREATE INDEX IF NOT EXISTS idx_ticker_results_ticker_recorded ON ticker_results (ticker, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_ticker_results_run_id ON ticker_results (run_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("%w: failed to execute schema initialization: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Debug(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// StartRun saves a new run and returns its assigned ID.
func (r *Repository) StartRun(ctx context.Context, run *domain.RunRecord) (int64, error) {
	const query = `
	INSERT INTO sync_runs (run_id, started_at, status, tickers, note)
	VALUES (?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		run.RunID, run.StartedAt.UTC(), run.Status, run.Tickers, run.Note)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert run %s: %w", ports.ErrQueryFailed, run.RunID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get last insert ID for run %s: %w", ports.ErrQueryFailed, run.RunID, err)
	}
	run.ID = id
	r.logger.Debug(ctx, "Run started", map[string]interface{}{"runID": run.RunID, "rowID": id})
	return id, nil
}

// RecordTicker saves the outcome of a single ticker.
func (r *Repository) RecordTicker(ctx context.Context, res *domain.TickerResult) error {
	const query = `
	INSERT INTO ticker_results (run_id, ticker, provider, outcome, rows_written,
	                            resume_point, last_row, error, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	recordedAt := res.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query,
		res.RunID, string(res.Ticker), string(res.Provider), string(res.Outcome), res.RowsWritten,
		nullTime(res.ResumePoint), nullTime(res.LastRow), res.Error, recordedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: failed to insert result for %s: %w", ports.ErrQueryFailed, res.Ticker, err)
	}
	return nil
}

// FinishRun stores the final status and totals of a run.
func (r *Repository) FinishRun(ctx context.Context, run *domain.RunRecord) error {
	const query = `
	UPDATE sync_runs
	SET finished_at = ?, status = ?, tickers = ?, failures = ?, note = ?
	WHERE run_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullTime(run.FinishedAt), run.Status, run.Tickers, run.Failures, run.Note, run.RunID)
	if err != nil {
		return fmt.Errorf("%w: failed to update run %s: %w", ports.ErrQueryFailed, run.RunID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected for run %s: %w", ports.ErrQueryFailed, run.RunID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s not found for update: %w", run.RunID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Run finished", map[string]interface{}{"runID": run.RunID, "status": run.Status})
	return nil
}

// RecentRuns retrieves the latest runs, newest first.
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	const query = `
	SELECT id, run_id, started_at, finished_at, status, tickers, failures, note
	FROM sync_runs
	ORDER BY started_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query runs: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	runs := make([]*domain.RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan run: %w", ports.ErrQueryFailed, err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating run rows: %w", ports.ErrQueryFailed, err)
	}
	return runs, nil
}

// TickerHistory retrieves the most recent results for a ticker, up to a limit.
func (r *Repository) TickerHistory(ctx context.Context, ticker domain.Ticker, limit int) ([]*domain.TickerResult, error) {
	const query = `
	SELECT run_id, ticker, provider, outcome, rows_written, resume_point, last_row, error, recorded_at
	FROM ticker_results
	WHERE ticker = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, string(ticker), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query results for %s: %w", ports.ErrQueryFailed, ticker, err)
	}
	defer rows.Close()

	results := make([]*domain.TickerResult, 0)
	for rows.Next() {
		res, err := scanTickerResult(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan result: %w", ports.ErrQueryFailed, err)
		}
		results = append(results, res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating result rows: %w", ports.ErrQueryFailed, err)
	}
	return results, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.RunRecord, error) {
	run := &domain.RunRecord{}
	var finishedAt sql.NullTime
	var status string
	err := s.Scan(&run.ID, &run.RunID, &run.StartedAt, &finishedAt, &status, &run.Tickers, &run.Failures, &run.Note)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	run.Status = domain.RunStatus(status)
	return run, nil
}

func scanTickerResult(s scanner) (*domain.TickerResult, error) {
	res := &domain.TickerResult{}
	var ticker, provider, outcome string
	var resumePoint, lastRow sql.NullTime
	err := s.Scan(&res.RunID, &ticker, &provider, &outcome, &res.RowsWritten,
		&resumePoint, &lastRow, &res.Error, &res.RecordedAt)
	if err != nil {
		return nil, err
	}
	res.Ticker = domain.Ticker(ticker)
	res.Provider = domain.ProviderName(provider)
	res.Outcome = domain.Outcome(outcome)
	if resumePoint.Valid {
		res.ResumePoint = resumePoint.Time
	}
	if lastRow.Valid {
		res.LastRow = lastRow.Time
	}
	return res, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
