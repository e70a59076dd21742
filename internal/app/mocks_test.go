package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"intradaySync/config"
	"intradaySync/internal/adapters/csvstore"
	"intradaySync/internal/domain"
	"intradaySync/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) hasWarn(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.warnMsgs {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// mockProvider serves canned rows. Each Fetch consumes the next scripted
// response for the ticker; the last one repeats.
type mockProvider struct {
	name      domain.ProviderName
	retention time.Duration
	naive     bool
	responses map[domain.Ticker][][]time.Time
	errs      map[domain.Ticker]error
	panicFor  domain.Ticker
	requests  []domain.FetchRequest
	calls     int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		name:      domain.ProviderYahoo,
		retention: 60 * 24 * time.Hour,
		responses: map[domain.Ticker][][]time.Time{},
		errs:      map[domain.Ticker]error{},
	}
}

func (m *mockProvider) script(ticker domain.Ticker, rows ...[]time.Time) {
	m.responses[ticker] = rows
}

func (m *mockProvider) Name() domain.ProviderName      { return m.name }
func (m *mockProvider) RetentionWindow() time.Duration { return m.retention }

func (m *mockProvider) Fetch(ctx context.Context, ticker domain.Ticker, req domain.FetchRequest) (*domain.Batch, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if m.panicFor != "" && ticker == m.panicFor {
		panic("index out of range in chart payload")
	}
	if err := m.errs[ticker]; err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	scripted := m.responses[ticker]
	if len(scripted) == 0 {
		return &domain.Batch{Ticker: ticker}, nil
	}
	times := scripted[0]
	if len(scripted) > 1 {
		m.responses[ticker] = scripted[1:]
	}
	return makeBatch(ticker, m.naive, times...), nil
}

// makeBatch builds a provider-shaped batch with two-level columns. Close is
// derived from the timestamp so repeated rows carry identical values.
func makeBatch(ticker domain.Ticker, naive bool, times ...time.Time) *domain.Batch {
	b := &domain.Batch{
		Ticker:  ticker,
		Columns: []domain.Column{{"Close", string(ticker)}, {"Volume", string(ticker)}},
		Naive:   naive,
	}
	for _, ts := range times {
		b.Rows = append(b.Rows, domain.Observation{
			Time: ts,
			Values: []decimal.NullDecimal{
				decimal.NewNullDecimal(decimal.NewFromInt(ts.Unix() % 100000).Shift(-2)),
				decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			},
		})
	}
	return b
}

type memBlob struct {
	folder string
	name   string
	data   []byte
}

// memBlobStore is an in-memory ports.BlobStore shared between test "processes".
type memBlobStore struct {
	mu           sync.Mutex
	blobs        map[string]*memBlob
	nextID       int
	pingErr      error
	downloadErrs map[string]error // by file name
	uploadErrs   map[string]error // by file name
	creates      int
	updates      int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{
		blobs:        map[string]*memBlob{},
		downloadErrs: map[string]error{},
		uploadErrs:   map[string]error{},
	}
}

func (m *memBlobStore) Ping(ctx context.Context, folder string) error {
	return m.pingErr
}

func (m *memBlobStore) Find(ctx context.Context, folder, name string) ([]domain.BlobRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []domain.BlobRef
	for id, b := range m.blobs {
		if b.folder == folder && b.name == name {
			refs = append(refs, domain.BlobRef{ID: id, Name: name})
		}
	}
	return refs, nil
}

func (m *memBlobStore) Download(ctx context.Context, id string, w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id]
	if !ok {
		return ports.ErrNotFound
	}
	if err := m.downloadErrs[b.name]; err != nil {
		return err
	}
	_, err := w.Write(b.data)
	return err
}

func (m *memBlobStore) Create(ctx context.Context, folder, name string, content io.Reader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.uploadErrs[name]; err != nil {
		return "", err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	m.nextID++
	id := fmt.Sprintf("blob-%d", m.nextID)
	m.blobs[id] = &memBlob{folder: folder, name: name, data: data}
	m.creates++
	return id, nil
}

func (m *memBlobStore) Update(ctx context.Context, id string, content io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id]
	if !ok {
		return ports.ErrNotFound
	}
	if err := m.uploadErrs[b.name]; err != nil {
		return err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	b.data = data
	m.updates++
	return nil
}

func (m *memBlobStore) put(folder, name, content string) string {
	id, _ := m.Create(context.Background(), folder, name, strings.NewReader(content))
	m.creates--
	return id
}

func (m *memBlobStore) content(folder, name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blobs {
		if b.folder == folder && b.name == name {
			return string(b.data), true
		}
	}
	return "", false
}

// mockLedger records everything written to the run ledger.
type mockLedger struct {
	started  []*domain.RunRecord
	finished []*domain.RunRecord
	results  []*domain.TickerResult
}

func (m *mockLedger) StartRun(ctx context.Context, run *domain.RunRecord) (int64, error) {
	cp := *run
	m.started = append(m.started, &cp)
	return int64(len(m.started)), nil
}

func (m *mockLedger) RecordTicker(ctx context.Context, res *domain.TickerResult) error {
	cp := *res
	m.results = append(m.results, &cp)
	return nil
}

func (m *mockLedger) FinishRun(ctx context.Context, run *domain.RunRecord) error {
	cp := *run
	m.finished = append(m.finished, &cp)
	return nil
}

func (m *mockLedger) RecentRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	return m.finished, nil
}

func (m *mockLedger) TickerHistory(ctx context.Context, ticker domain.Ticker, limit int) ([]*domain.TickerResult, error) {
	return nil, nil
}

func (m *mockLedger) Close() error { return nil }

// --- fixtures ---

const testFolder = "folder-123"

var (
	ist = time.FixedZone("IST", 5*3600+30*60)
	// t0 is 09:15 IST on a trading day.
	t0      = time.Date(2024, 1, 2, 3, 45, 0, 0, time.UTC)
	testNow = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
)

// bar returns the open time of the i-th five minute bar after t0.
func bar(i int) time.Time {
	return t0.Add(time.Duration(i) * 5 * time.Minute)
}

func bars(from, to int) []time.Time {
	var out []time.Time
	for i := from; i <= to; i++ {
		out = append(out, bar(i))
	}
	return out
}

// testEnv is one "process": its own data directory over a possibly shared remote.
type testEnv struct {
	cfg       *config.Config
	logger    *mockLogger
	store     *csvstore.Store
	provider  *mockProvider
	blobs     *memBlobStore
	ledger    *mockLedger
	collector *Collector
	sync      *Sync
	pipeline  *Pipeline
}

func newTestEnv(t *testing.T, blobs *memBlobStore, tickers ...domain.Ticker) *testEnv {
	t.Helper()
	specs := make([]domain.TickerSpec, len(tickers))
	for i, tk := range tickers {
		specs[i] = domain.TickerSpec{Symbol: tk, Provider: domain.ProviderYahoo}
	}
	cfg := &config.Config{
		Tickers:         specs,
		DataDir:         t.TempDir(),
		Interval:        "5m",
		Timezone:        "Asia/Kolkata",
		Location:        ist,
		RetentionWindow: 60 * 24 * time.Hour,
		RemoteBackend:   config.BackendDir,
		RemoteFolderID:  testFolder,
		RequireRemote:   true,
	}
	env := &testEnv{cfg: cfg, logger: &mockLogger{}, provider: newMockProvider(), blobs: blobs, ledger: &mockLedger{}}

	var err error
	env.store, err = csvstore.New(csvstore.Config{DataDir: cfg.DataDir, Location: ist, Logger: env.logger})
	require.NoError(t, err)
	env.collector, err = NewCollector(cfg, env.logger, env.store, env.provider)
	require.NoError(t, err)
	env.collector.now = func() time.Time { return testNow }
	if blobs != nil {
		env.sync, err = NewSync(cfg, env.logger, blobs, env.store)
		require.NoError(t, err)
	}
	env.pipeline, err = NewPipeline(cfg, env.logger, env.collector, env.sync, env.ledger)
	require.NoError(t, err)
	env.pipeline.now = func() time.Time { return testNow }
	return env
}

func (e *testEnv) specs() []domain.TickerSpec {
	return e.cfg.Tickers
}

// dataLines returns the non-header lines of a CSV document.
func dataLines(t *testing.T, content string) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(content))
	first := true
	for sc.Scan() {
		if first {
			first = false
			require.True(t, strings.HasPrefix(sc.Text(), "Datetime,"), "header expected, got %q", sc.Text())
			continue
		}
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	require.NoError(t, sc.Err())
	return lines
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// timestamps returns the first field of each data line.
func timestamps(t *testing.T, content string) []string {
	t.Helper()
	var out []string
	for _, line := range dataLines(t, content) {
		out = append(out, strings.SplitN(line, ",", 2)[0])
	}
	return out
}

func csvLine(ts time.Time, values ...string) string {
	var buf bytes.Buffer
	buf.WriteString(ts.In(ist).Format("2006-01-02 15:04:05-07:00"))
	for _, v := range values {
		buf.WriteString(",")
		buf.WriteString(v)
	}
	return buf.String()
}
