package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// maxLimit is the largest page the klines endpoint returns.
	maxLimit = 1500

	defaultInterval  = "5m"
	defaultRetention = 30 * 24 * time.Hour
)

var fieldOrder = []string{"Close", "High", "Low", "Open", "Volume"}

// Client implements the ports.MarketDataProvider interface using the go-binance library.
// Klines are public, so API keys are optional.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	interval      string
	retention     time.Duration
	now           func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey          string
	SecretKey       string
	UseTestnet      bool
	BaseURL         string        // Overrides the production/testnet URL when set
	Interval        string        // Kline interval, e.g. "5m"
	RetentionWindow time.Duration // How far back a fresh series starts
	Logger          ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Debug(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	interval := cfg.Interval
	if interval == "" {
		interval = defaultInterval
	}
	retention := cfg.RetentionWindow
	if retention <= 0 {
		retention = defaultRetention
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		interval:      interval,
		retention:     retention,
		now:           time.Now,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() domain.ProviderName { return domain.ProviderBinance }

// RetentionWindow returns the configured lookback for fresh series.
func (c *Client) RetentionWindow() time.Duration { return c.retention }

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1121: // Invalid symbol
			mappedErr = ports.ErrUnknownSymbol
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -1001, -1006, -1007: // Internal error, unexpected response, timeout waiting for backend
			mappedErr = ports.ErrProviderUnavailable
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Debug(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Debug(ctx, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Fetch pages through klines between the request start (or now minus the
// requested period) and the request end (or now). Klines still open at the
// end of the range are left out so a forming candle is never persisted.
func (c *Client) Fetch(ctx context.Context, ticker domain.Ticker, req domain.FetchRequest) (*domain.Batch, error) {
	op := "Fetch"
	symbol := string(ticker)

	interval := req.Interval
	if interval == "" {
		interval = c.interval
	}
	end := req.End
	if end.IsZero() {
		end = c.now()
	}
	var start time.Time
	switch {
	case req.IsMaxWindow():
		start = end.Add(-req.Period)
	case !req.Start.IsZero():
		start = req.Start
	default:
		return nil, c.handleError(ctx, fmt.Errorf("%w: request has neither period nor start", ports.ErrInvalidRequest), op)
	}

	batch := &domain.Batch{Ticker: ticker}
	for _, f := range fieldOrder {
		batch.Columns = append(batch.Columns, domain.Column{f})
	}

	from := start
	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			if time.UnixMilli(bk.CloseTime).After(end) {
				continue
			}
			obs, err := translateBinanceKline(bk)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			batch.Rows = append(batch.Rows, obs)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if !from.Before(end) || len(klines) < maxLimit {
			break
		}
	}

	c.logger.Debug(ctx, "Fetched klines", map[string]interface{}{"symbol": symbol, "interval": interval, "count": batch.Len()})
	return batch, nil
}

func translateBinanceKline(bk *futures.Kline) (domain.Observation, error) {
	if bk == nil {
		return domain.Observation{}, errors.New("received nil historical kline")
	}
	values := make([]decimal.NullDecimal, 0, len(fieldOrder))
	for _, field := range []struct{ name, raw string }{
		{"close", bk.Close},
		{"high", bk.High},
		{"low", bk.Low},
		{"open", bk.Open},
		{"volume", bk.Volume},
	} {
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("parsing %s '%s': %w", field.name, field.raw, err)
		}
		values = append(values, decimal.NewNullDecimal(d))
	}

	return domain.Observation{
		Time:   time.UnixMilli(bk.OpenTime).UTC(),
		Values: values,
	}, nil
}
