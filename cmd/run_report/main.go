package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"intradaySync/config"
	"intradaySync/internal/adapters/logger"
	"intradaySync/internal/adapters/sqlite"
	"intradaySync/internal/domain"
)

func main() {
	limit := flag.Int("limit", 10, "number of runs (or results with -ticker) to show")
	ticker := flag.String("ticker", "", "show the history of a single ticker instead of runs")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if cfg.DBPath == "" {
		log.Fatalf("FATAL: DB_PATH must be set to read the run ledger")
	}

	appLogger, err := logger.New(logger.LevelWarn, cfg.LogFormat)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open run ledger: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if *ticker != "" {
		results, err := repo.TickerHistory(ctx, domain.Ticker(*ticker), *limit)
		if err != nil {
			log.Fatalf("Error reading history for %s: %v", *ticker, err)
		}
		if len(results) == 0 {
			log.Printf("No results recorded for %s.", *ticker)
			return
		}
		printHistory(os.Stdout, results, cfg.Location)
		return
	}

	runs, err := repo.RecentRuns(ctx, *limit)
	if err != nil {
		log.Fatalf("Error reading runs: %v", err)
	}
	if len(runs) == 0 {
		log.Println("No runs recorded yet.")
		return
	}
	printRuns(os.Stdout, runs, cfg.Location)
}

// printRuns writes one row per run.
func printRuns(out io.Writer, runs []*domain.RunRecord, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Started\tRun\tStatus\tTickers\tFailed\tDuration\tNote")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			formatTime(r.StartedAt, loc), shortID(r.RunID), r.Status, r.Tickers, r.Failures, duration, r.Note)
	}
	w.Flush()
}

// printHistory writes one row per recorded ticker outcome.
func printHistory(out io.Writer, results []*domain.TickerResult, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Recorded\tRun\tOutcome\tRows\tResumePoint\tLastRow\tError")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			formatTime(r.RecordedAt, loc), shortID(r.RunID), r.Outcome, r.RowsWritten,
			formatTime(r.ResumePoint, loc), formatTime(r.LastRow, loc), r.Error)
	}
	w.Flush()
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
