// Package wiring builds adapters from configuration for the commands.
package wiring

import (
	"context"
	"fmt"

	"intradaySync/config"
	"intradaySync/internal/adapters/binanceclient"
	"intradaySync/internal/adapters/dirblob"
	"intradaySync/internal/adapters/gdrive"
	"intradaySync/internal/adapters/sqlite"
	"intradaySync/internal/adapters/yahoo"
	"intradaySync/internal/domain"
	"intradaySync/internal/ports"
)

// Providers returns one market data provider per provider name in the watch list.
func Providers(cfg *config.Config, l ports.Logger) ([]ports.MarketDataProvider, error) {
	var providers []ports.MarketDataProvider
	if len(cfg.TickersFor(domain.ProviderYahoo)) > 0 {
		y, err := yahoo.New(yahoo.Config{
			Interval:        cfg.Interval,
			RetentionWindow: cfg.RetentionWindow,
			Proxy:           cfg.HTTPProxy,
			Timeout:         cfg.HTTPTimeout,
			Logger:          l,
		})
		if err != nil {
			return nil, fmt.Errorf("yahoo provider: %w", err)
		}
		providers = append(providers, y)
	}
	if len(cfg.TickersFor(domain.ProviderBinance)) > 0 {
		b, err := binanceclient.New(binanceclient.Config{
			APIKey:          cfg.BinanceAPIKey,
			SecretKey:       cfg.BinanceSecretKey,
			UseTestnet:      cfg.BinanceTestnet,
			Interval:        cfg.Interval,
			RetentionWindow: cfg.BinanceLookback,
			Logger:          l,
		})
		if err != nil {
			return nil, fmt.Errorf("binance provider: %w", err)
		}
		providers = append(providers, b)
	}
	return providers, nil
}

// Ledger opens the sqlite run ledger, or a noop ledger when DB_PATH is empty
// or the database cannot be opened.
func Ledger(ctx context.Context, cfg *config.Config, l ports.Logger) ports.RunRepository {
	if cfg.DBPath == "" {
		l.Debug(ctx, "DB_PATH not set, run ledger disabled")
		return sqlite.NoopRepository{}
	}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: l})
	if err != nil {
		l.Warn(ctx, "Run ledger unavailable, continuing without it", map[string]interface{}{"error": err.Error()})
		return sqlite.NoopRepository{}
	}
	l.Info(ctx, "Run ledger initialized", map[string]interface{}{"path": cfg.DBPath})
	return repo
}

// BlobStore opens the configured remote backend.
func BlobStore(ctx context.Context, cfg *config.Config, l ports.Logger) (ports.BlobStore, error) {
	if err := cfg.ValidateRemote(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}
	if cfg.RemoteBackend == config.BackendDir {
		store, err := dirblob.New(dirblob.Config{Root: cfg.RemoteDir, Logger: l})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	client, err := gdrive.New(ctx, gdrive.Config{
		CredentialsJSON: cfg.GDriveCredentials,
		TokenJSON:       cfg.GDriveToken,
		Logger:          l,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
