package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Display timezone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"intradaySync/internal/adapters/logger"
	"intradaySync/internal/domain"
)

// Remote storage backends.
const (
	BackendDrive = "drive"
	BackendDir   = "dir"
)

// DefaultTickers is the watch list used when neither TICKERS nor TICKERS_FILE is set.
var DefaultTickers = []domain.Ticker{
	"^NSEI", "^BSESN", "^NSEBANK",
	"RELIANCE.NS", "TCS.NS", "HDFCBANK.NS", "INFY.NS", "TATAMOTORS.NS",
}

// Config holds all application configuration.
type Config struct {
	// Watch list
	Tickers     []domain.TickerSpec
	TickersFile string

	// Collection
	DataDir         string
	Interval        string         // Sampling interval, e.g. "5m"
	Timezone        string         // IANA name of the display timezone
	Location        *time.Location // Resolved Timezone
	RetentionWindow time.Duration  // Yahoo lookback limit for Interval
	HTTPProxy       string
	HTTPTimeout     time.Duration

	// Binance (crypto tickers only)
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceTestnet   bool
	BinanceLookback  time.Duration

	// Remote storage
	RemoteBackend     string // BackendDrive or BackendDir
	RemoteFolderID    string // Drive folder id, or sub directory name for BackendDir
	RemoteDir         string // Root directory for BackendDir
	GDriveCredentials string // Service account key JSON
	GDriveToken       string // OAuth user token JSON
	RequireRemote     bool   // When false a failed remote session only skips sync

	// Database
	DBPath string // Empty disables the run ledger

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string

	// Scheduling
	ScheduleCron string // Empty runs once and exits
}

// tickerFile is the layout of TICKERS_FILE.
type tickerFile struct {
	Tickers []domain.TickerSpec `yaml:"tickers"`
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Watch list
	cfg.TickersFile = getEnv("TICKERS_FILE", "")
	cfg.Tickers, err = loadTickers(cfg.TickersFile, getEnv("TICKERS", ""), getEnv("CRYPTO_TICKERS", ""))
	if err != nil {
		errs = append(errs, err.Error())
	} else if len(cfg.Tickers) == 0 {
		errs = append(errs, "at least one ticker must be configured")
	}

	// Collection
	cfg.DataDir = getEnv("DATA_DIR", "data_ist")
	cfg.Interval = getEnv("INTERVAL", "5m")

	cfg.Timezone = getEnv("TIMEZONE", "Asia/Kolkata")
	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE %q: %v", cfg.Timezone, err))
	}

	retentionDays, err := getEnvAsIntRequired("RETENTION_DAYS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RETENTION_DAYS: %v", err))
	} else if retentionDays < 2 {
		errs = append(errs, "RETENTION_DAYS must be at least 2")
	}
	cfg.RetentionWindow = time.Duration(retentionDays) * 24 * time.Hour

	cfg.HTTPProxy = getEnv("HTTPS_PROXY", "")
	timeoutSeconds := getEnvAsInt("HTTP_TIMEOUT_SECONDS", 30)
	if timeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	// Binance
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.BinanceTestnet = getEnvAsBool("IS_TESTNET", false)
	lookbackDays, err := getEnvAsIntRequired("BINANCE_LOOKBACK_DAYS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_LOOKBACK_DAYS: %v", err))
	} else if lookbackDays <= 0 {
		errs = append(errs, "BINANCE_LOOKBACK_DAYS must be positive")
	}
	cfg.BinanceLookback = time.Duration(lookbackDays) * 24 * time.Hour

	// Remote storage
	cfg.RemoteBackend = strings.ToLower(getEnv("REMOTE_BACKEND", BackendDrive))
	if cfg.RemoteBackend != BackendDrive && cfg.RemoteBackend != BackendDir {
		errs = append(errs, fmt.Sprintf("REMOTE_BACKEND must be %q or %q", BackendDrive, BackendDir))
	}
	cfg.RemoteFolderID = getEnv("GDRIVE_FOLDER_ID", "")
	cfg.RemoteDir = getEnv("REMOTE_DIR", "")
	cfg.GDriveCredentials = getEnv("GDRIVE_CREDENTIALS", "")
	cfg.GDriveToken = getEnv("GDRIVE_TOKEN", "")
	cfg.RequireRemote = getEnvAsBool("SYNC_REQUIRE_REMOTE", true)

	// Database
	cfg.DBPath = getEnv("DB_PATH", "")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", logger.FormatConsole))
	if cfg.LogFormat != logger.FormatConsole && cfg.LogFormat != logger.FormatJSON {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be %q or %q", logger.FormatJSON, logger.FormatConsole))
	}

	// Scheduling
	cfg.ScheduleCron = getEnv("SCHEDULE_CRON", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// ValidateRemote checks the settings needed to open a remote session.
// Commands that never touch remote storage skip it.
func (c *Config) ValidateRemote() error {
	var errs []string
	if c.RemoteFolderID == "" {
		errs = append(errs, "GDRIVE_FOLDER_ID must be set")
	}
	switch c.RemoteBackend {
	case BackendDrive:
		if c.GDriveCredentials == "" && c.GDriveToken == "" {
			errs = append(errs, "GDRIVE_CREDENTIALS or GDRIVE_TOKEN must be set")
		}
	case BackendDir:
		if c.RemoteDir == "" {
			errs = append(errs, "REMOTE_DIR must be set when REMOTE_BACKEND=dir")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("remote configuration invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TickersFor returns the configured symbols served by provider.
func (c *Config) TickersFor(provider domain.ProviderName) []domain.Ticker {
	var out []domain.Ticker
	for _, spec := range c.Tickers {
		if spec.Provider == provider {
			out = append(out, spec.Symbol)
		}
	}
	return out
}

// Symbols returns every configured ticker in watch-list order.
func (c *Config) Symbols() []domain.Ticker {
	out := make([]domain.Ticker, len(c.Tickers))
	for i, spec := range c.Tickers {
		out[i] = spec.Symbol
	}
	return out
}

// loadTickers builds the watch list. TICKERS and CRYPTO_TICKERS override the
// file, which overrides DefaultTickers.
func loadTickers(path, equities, crypto string) ([]domain.TickerSpec, error) {
	var specs []domain.TickerSpec
	switch {
	case equities != "" || crypto != "":
		specs = append(specs, splitTickers(equities, domain.ProviderYahoo)...)
		specs = append(specs, splitTickers(crypto, domain.ProviderBinance)...)
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read TICKERS_FILE: %v", err)
		}
		var tf tickerFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("cannot parse TICKERS_FILE: %v", err)
		}
		specs = tf.Tickers
	default:
		for _, t := range DefaultTickers {
			specs = append(specs, domain.TickerSpec{Symbol: t, Provider: domain.ProviderYahoo})
		}
	}

	seen := make(map[domain.Ticker]bool, len(specs))
	for i := range specs {
		specs[i].Symbol = domain.Ticker(strings.TrimSpace(string(specs[i].Symbol)))
		if specs[i].Provider == "" {
			specs[i].Provider = domain.ProviderYahoo
		}
		switch {
		case specs[i].Symbol == "":
			return nil, fmt.Errorf("ticker %d has an empty symbol", i+1)
		case strings.ContainsAny(string(specs[i].Symbol), `/\`):
			return nil, fmt.Errorf("ticker %q contains a path separator", specs[i].Symbol)
		case specs[i].Provider != domain.ProviderYahoo && specs[i].Provider != domain.ProviderBinance:
			return nil, fmt.Errorf("ticker %q has unknown provider %q", specs[i].Symbol, specs[i].Provider)
		case seen[specs[i].Symbol]:
			return nil, fmt.Errorf("ticker %q is listed twice", specs[i].Symbol)
		}
		seen[specs[i].Symbol] = true
	}
	return specs, nil
}

func splitTickers(list string, provider domain.ProviderName) []domain.TickerSpec {
	var specs []domain.TickerSpec
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		specs = append(specs, domain.TickerSpec{Symbol: domain.Ticker(s), Provider: provider})
	}
	return specs
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
