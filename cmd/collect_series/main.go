package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"intradaySync/config"
	"intradaySync/internal/adapters/csvstore"
	"intradaySync/internal/adapters/logger"
	"intradaySync/internal/app"
	"intradaySync/internal/domain"
	"intradaySync/internal/wiring"
)

// Runs the collector against the local data directory only. Useful to seed
// or repair series files without touching remote storage.
func main() {
	only := flag.String("tickers", "", "comma separated subset of the configured tickers")
	flag.Parse()

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

	specs, err := selectTickers(cfg.Tickers, *only)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// 3. Initialize Store, Providers and Collector
	store, err := csvstore.New(csvstore.Config{DataDir: cfg.DataDir, Location: cfg.Location, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize series store")
		log.Fatalf("FATAL: Failed to initialize series store: %v", err)
	}
	providers, err := wiring.Providers(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize providers")
		log.Fatalf("FATAL: Failed to initialize providers: %v", err)
	}
	collector, err := app.NewCollector(cfg, appLogger, store, providers...)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize collector")
		log.Fatalf("FATAL: Failed to initialize collector: %v", err)
	}

	// 4. Collect
	results := collector.Run(ctx, specs)
	for _, r := range results {
		line := fmt.Sprintf("%-16s %-12s rows=%d", r.Ticker, r.Outcome, r.RowsWritten)
		if r.Error != "" {
			line += " error=" + r.Error
		}
		fmt.Println(line)
	}
}

// selectTickers narrows specs to the symbols named in list, keeping config order.
func selectTickers(specs []domain.TickerSpec, list string) ([]domain.TickerSpec, error) {
	if strings.TrimSpace(list) == "" {
		return specs, nil
	}
	wanted := map[domain.Ticker]bool{}
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			wanted[domain.Ticker(s)] = true
		}
	}
	var out []domain.TickerSpec
	for _, spec := range specs {
		if wanted[spec.Symbol] {
			out = append(out, spec)
			delete(wanted, spec.Symbol)
		}
	}
	if len(wanted) > 0 {
		var missing []string
		for t := range wanted {
			missing = append(missing, string(t))
		}
		return nil, fmt.Errorf("tickers not in configuration: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
