package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

const chartFixture = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "^NSEI", "exchangeName": "NSI", "exchangeTimezoneName": "Asia/Kolkata"},
      "timestamp": [1704167400, 1704167100, 1704167700],
      "indicators": {"quote": [{
        "open":   [21732.5, 21727.35, null],
        "high":   [21740.1, 21735.0, null],
        "low":    [21720.0, 21710.8, null],
        "close":  [21731.4, 21729.9, null],
        "volume": [0, null, 0]
      }]}
    }],
    "error": null
  }
}`

func setupClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Interval: "5m", Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "logger is required")

	_, err = New(Config{Logger: &mockLogger{}, Proxy: "://bad"})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	c, err := New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYahoo, c.Name())
	assert.Equal(t, 60*24*time.Hour, c.RetentionWindow())
}

func TestClient_Fetch_MaxWindow(t *testing.T) {
	var gotQuery string
	var gotPath string
	c := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartFixture))
	})

	batch, err := c.Fetch(context.Background(), "^NSEI", domain.FetchRequest{Interval: "5m", Period: 60 * 24 * time.Hour})
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/%5ENSEI", gotPath)
	assert.Contains(t, gotQuery, "range=60d")
	assert.Contains(t, gotQuery, "interval=5m")
	assert.NotContains(t, gotQuery, "period1")

	// Null bar skipped, rows sorted ascending, two-level columns.
	require.Equal(t, 2, batch.Len())
	assert.False(t, batch.Naive)
	assert.Equal(t, domain.Column{"Close", "^NSEI"}, batch.Columns[0])
	assert.Equal(t, []string{"Close", "High", "Low", "Open", "Volume"}, batch.FlatColumns())
	assert.Equal(t, time.Unix(1704167100, 0).UTC(), batch.Rows[0].Time)
	assert.Equal(t, "21729.9", batch.Rows[0].Values[0].Decimal.String())
	assert.False(t, batch.Rows[0].Values[4].Valid, "null volume stays null")
	assert.Equal(t, "21731.4", batch.Rows[1].Values[0].Decimal.String())
}

func TestClient_Fetch_FromStart(t *testing.T) {
	var gotQuery string
	c := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartFixture))
	})

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	_, err := c.Fetch(context.Background(), "TCS.NS", domain.FetchRequest{Start: start, End: end})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "period1=1704153600")
	assert.Contains(t, gotQuery, "period2=1704326400")
	assert.Contains(t, gotQuery, "interval=5m", "falls back to configured interval")
	assert.NotContains(t, gotQuery, "range=")
}

func TestClient_Fetch_EmptyResult(t *testing.T) {
	c := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"meta":{},"indicators":{"quote":[{}]}}],"error":null}`))
	})

	batch, err := c.Fetch(context.Background(), "^BSESN", domain.FetchRequest{Period: 24 * time.Hour})
	require.NoError(t, err)
	assert.True(t, batch.IsEmpty())
}

func TestClient_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		req     domain.FetchRequest
		wantErr error
	}{
		{
			name:    "unknown symbol",
			status:  http.StatusNotFound,
			body:    `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`,
			req:     domain.FetchRequest{Period: time.Hour * 24},
			wantErr: ports.ErrUnknownSymbol,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    "Too Many Requests",
			req:     domain.FetchRequest{Period: time.Hour * 24},
			wantErr: ports.ErrRateLimited,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    "",
			req:     domain.FetchRequest{Period: time.Hour * 24},
			wantErr: ports.ErrProviderUnavailable,
		},
		{
			name:    "api error with 200",
			status:  http.StatusOK,
			body:    `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input - interval=7m is not supported"}}}`,
			req:     domain.FetchRequest{Period: time.Hour * 24},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "garbage body",
			status:  http.StatusOK,
			body:    "<html>",
			req:     domain.FetchRequest{Period: time.Hour * 24},
			wantErr: ports.ErrProviderUnavailable,
		},
		{
			name:    "request without window",
			status:  http.StatusOK,
			body:    chartFixture,
			req:     domain.FetchRequest{},
			wantErr: ports.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Fetch(context.Background(), "BAD", tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, strings.HasPrefix(err.Error(), "Fetch"))
		})
	}
}

func TestClient_Fetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Logger: &mockLogger{}})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "^NSEI", domain.FetchRequest{Period: 24 * time.Hour})
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}
