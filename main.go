package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"intradaySync/config"
	"intradaySync/internal/adapters/csvstore"
	"intradaySync/internal/adapters/logger"
	"intradaySync/internal/app"
	"intradaySync/internal/ports"
	"intradaySync/internal/wiring"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Run Ledger
	ledger := wiring.Ledger(ctx, cfg, appLogger)
	defer func() {
		if err := ledger.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing run ledger")
		}
	}()

	// 4. Initialize Local Series Store
	store, err := csvstore.New(csvstore.Config{DataDir: cfg.DataDir, Location: cfg.Location, Logger: appLogger})
	if err != nil {
		fatal(ctx, appLogger, err, "Failed to initialize series store")
	}

	// 5. Initialize Market Data Providers and Collector
	providers, err := wiring.Providers(cfg, appLogger)
	if err != nil {
		fatal(ctx, appLogger, err, "Failed to initialize market data providers")
	}
	collector, err := app.NewCollector(cfg, appLogger, store, providers...)
	if err != nil {
		fatal(ctx, appLogger, err, "Failed to initialize collector")
	}

	// 6. Initialize Remote Sync
	var syncer *app.Sync
	blobs, err := wiring.BlobStore(ctx, cfg, appLogger)
	switch {
	case err != nil && cfg.RequireRemote:
		fatal(ctx, appLogger, err, "Cannot establish remote session; set GDRIVE_CREDENTIALS or GDRIVE_TOKEN and GDRIVE_FOLDER_ID")
	case err != nil:
		appLogger.Warn(ctx, "Remote storage unavailable, running local only", map[string]interface{}{"error": err.Error()})
	default:
		syncer, err = app.NewSync(cfg, appLogger, blobs, store)
		if err != nil {
			fatal(ctx, appLogger, err, "Failed to initialize remote sync")
		}
	}

	// 7. Initialize Pipeline
	pipeline, err := app.NewPipeline(cfg, appLogger, collector, syncer, ledger)
	if err != nil {
		fatal(ctx, appLogger, err, "Failed to initialize pipeline")
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	// 8. Run once, or on schedule
	if cfg.ScheduleCron == "" {
		if _, err := pipeline.Run(ctx); err != nil {
			fatal(ctx, appLogger, err, "Sync run failed")
		}
		appLogger.Info(ctx, "Application finished gracefully.")
		return
	}

	if err := runScheduled(ctx, cfg, appLogger, pipeline); err != nil {
		fatal(ctx, appLogger, err, "Scheduler failed")
	}
	appLogger.Info(ctx, "Application finished gracefully.")
}

// fatal logs err and exits with status 1.
func fatal(ctx context.Context, l *logger.ZapLogger, err error, msg string) {
	l.Error(ctx, err, "FATAL: "+msg)
	_ = l.Sync()
	log.Fatalf("FATAL: %s: %v", msg, err)
}

// runScheduled runs the pipeline immediately and then on cfg.ScheduleCron
// until ctx is canceled. A tick that fires during a run is skipped.
func runScheduled(ctx context.Context, cfg *config.Config, l ports.Logger, pipeline *app.Pipeline) error {
	cl := cronLogger{ctx: ctx, logger: l}
	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	job := cron.FuncJob(func() {
		if _, err := pipeline.Run(ctx); err != nil {
			l.Error(ctx, err, "Scheduled sync run failed, waiting for next tick")
		}
	})
	id, err := c.AddJob(cfg.ScheduleCron, job)
	if err != nil {
		return fmt.Errorf("%w: invalid SCHEDULE_CRON %q: %w", ports.ErrConfigurationError, cfg.ScheduleCron, err)
	}

	c.Start()
	l.Info(ctx, "Scheduler started", map[string]interface{}{"schedule": cfg.ScheduleCron, "timezone": cfg.Timezone})
	c.Entry(id).WrappedJob.Run()

	<-ctx.Done()
	<-c.Stop().Done()
	l.Info(context.Background(), "Scheduler stopped")
	return nil
}

// cronLogger routes cron's internal logging through ports.Logger.
type cronLogger struct {
	ctx    context.Context
	logger ports.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(c.ctx, "cron: "+msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(c.ctx, err, "cron: "+msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
