package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL  = "https://query1.finance.yahoo.com"
	defaultInterval = "5m"
	// Yahoo serves 5 minute bars for the last 60 days only.
	defaultRetention = 60 * 24 * time.Hour
)

// fieldOrder is the column order of the series files (auto-adjusted OHLCV).
var fieldOrder = []string{"Close", "High", "Low", "Open", "Volume"}

// Client implements ports.MarketDataProvider using the Yahoo Finance chart API.
type Client struct {
	baseURL   string
	interval  string
	retention time.Duration
	http      *http.Client
	logger    ports.Logger
}

// Config holds configuration specific to the Yahoo adapter.
type Config struct {
	BaseURL         string        // Defaults to the public query1 endpoint
	Interval        string        // Sampling interval, e.g. "5m"
	RetentionWindow time.Duration // Max lookback the API serves for Interval
	Proxy           string        // Optional HTTPS proxy URL
	Timeout         time.Duration // Per request timeout, 30s when zero
	Logger          ports.Logger
	HTTPClient      *http.Client // Overrides Proxy and Timeout when set
}

// New creates a new Yahoo Finance provider.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Yahoo client")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	interval := cfg.Interval
	if interval == "" {
		interval = defaultInterval
	}
	retention := cfg.RetentionWindow
	if retention <= 0 {
		retention = defaultRetention
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{}
		if cfg.Proxy != "" {
			u, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid proxy URL: %w", ports.ErrConfigurationError, err)
			}
			transport.Proxy = http.ProxyURL(u)
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	return &Client{
		baseURL:   baseURL,
		interval:  interval,
		retention: retention,
		http:      httpClient,
		logger:    cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() domain.ProviderName { return domain.ProviderYahoo }

// RetentionWindow returns the max lookback for the configured interval.
func (c *Client) RetentionWindow() time.Duration { return c.retention }

// chartResponse is the response structure from the Yahoo Finance chart API.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol       string `json:"symbol"`
				ExchangeName string `json:"exchangeName"`
				Timezone     string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves bars for ticker. A response without bars yields an empty batch.
func (c *Client) Fetch(ctx context.Context, ticker domain.Ticker, req domain.FetchRequest) (*domain.Batch, error) {
	op := "Fetch"

	endpoint, err := c.chartURL(ticker, req)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err), op, ticker)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.handleError(ctx, err, op, ticker)
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug(ctx, "Requesting Yahoo chart", map[string]interface{}{"ticker": ticker, "url": endpoint})

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.handleError(ctx, err, op, ticker)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("read body: %w", err), op, ticker)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)

	if resp.StatusCode != http.StatusOK {
		detail := string(body)
		if decodeErr == nil && chart.Chart.Error != nil {
			detail = chart.Chart.Error.Description
		}
		return nil, c.handleError(ctx, fmt.Errorf("%w: status %d: %s", statusError(resp.StatusCode), resp.StatusCode, detail), op, ticker)
	}
	if decodeErr != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: decode chart: %w", ports.ErrProviderUnavailable, decodeErr), op, ticker)
	}
	if chart.Chart.Error != nil {
		sentinel := ports.ErrInvalidRequest
		if chart.Chart.Error.Code == "Not Found" {
			sentinel = ports.ErrUnknownSymbol
		}
		return nil, c.handleError(ctx, fmt.Errorf("%w: %s", sentinel, chart.Chart.Error.Description), op, ticker)
	}

	return toBatch(ticker, &chart), nil
}

func (c *Client) chartURL(ticker domain.Ticker, req domain.FetchRequest) (string, error) {
	interval := req.Interval
	if interval == "" {
		interval = c.interval
	}

	q := url.Values{}
	q.Set("interval", interval)
	q.Set("includePrePost", "false")
	q.Set("events", "div,splits")

	switch {
	case req.IsMaxWindow():
		days := int(req.Period.Hours() / 24)
		if days < 1 {
			days = 1
		}
		q.Set("range", strconv.Itoa(days)+"d")
	case !req.Start.IsZero():
		end := req.End
		if end.IsZero() {
			end = time.Now()
		}
		if !end.After(req.Start) {
			return "", fmt.Errorf("end %s is not after start %s", end, req.Start)
		}
		q.Set("period1", strconv.FormatInt(req.Start.Unix(), 10))
		q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	default:
		return "", errors.New("request has neither period nor start")
	}

	return fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(string(ticker)), q.Encode()), nil
}

// toBatch converts the chart into a batch with (field, ticker) columns, the
// shape a multi-ticker download produces. Bars with no prices are skipped.
func toBatch(ticker domain.Ticker, chart *chartResponse) *domain.Batch {
	batch := &domain.Batch{Ticker: ticker}
	for _, f := range fieldOrder {
		batch.Columns = append(batch.Columns, domain.Column{f, string(ticker)})
	}

	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return batch
	}
	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	for i, ts := range result.Timestamp {
		open, high, low, cls, vol := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i), at(quote.Volume, i)
		if !open.Valid && !high.Valid && !low.Valid && !cls.Valid {
			continue // Null bar (halt, holiday, partial candle)
		}
		batch.Rows = append(batch.Rows, domain.Observation{
			Time:   time.Unix(ts, 0).UTC(),
			Values: []decimal.NullDecimal{cls, high, low, open, vol},
		})
	}

	sort.Slice(batch.Rows, func(i, j int) bool { return batch.Rows[i].Time.Before(batch.Rows[j].Time) })
	return batch
}

func at(values []*float64, i int) decimal.NullDecimal {
	if i >= len(values) || values[i] == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*values[i]))
}

func statusError(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ports.ErrUnknownSymbol
	case code == http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case code >= 500:
		return ports.ErrProviderUnavailable
	default:
		return ports.ErrInvalidRequest
	}
}

// handleError classifies transport errors onto ports sentinels and logs them.
func (c *Client) handleError(ctx context.Context, err error, operation string, ticker domain.Ticker) error {
	fields := map[string]interface{}{"operation": operation, "ticker": ticker}

	var finalErr error
	switch {
	case errors.Is(err, ports.ErrUnknownSymbol), errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, ports.ErrProviderUnavailable), errors.Is(err, ports.ErrInvalidRequest):
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			if urlErr.Timeout() {
				finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
			} else {
				finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
			}
		} else {
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
		}
	}

	c.logger.Debug(ctx, fmt.Sprintf("Yahoo %s failed", operation), fields)
	return finalErr
}
