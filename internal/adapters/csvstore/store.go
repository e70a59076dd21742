package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"
	"intradaySync/internal/utils"
)

// timestampColumn is the header label written for the index column.
const timestampColumn = "Datetime"

// Store implements ports.SeriesStore with one CSV file per ticker:
// <data_dir>/<ticker>/<ticker>_data.csv
type Store struct {
	dataDir string
	loc     *time.Location
	stride  int64
	logger  ports.Logger
}

// Config holds configuration for the CSV series store.
type Config struct {
	DataDir  string
	Location *time.Location // Display timezone; naive timestamps in files are read in this zone
	Stride   int64          // Tail scan block size, utils.DefaultTailStride when zero
	Logger   ports.Logger
}

// New creates a new CSV series store.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for CSV series store")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ports.ErrConfigurationError)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	stride := cfg.Stride
	if stride <= 0 {
		stride = utils.DefaultTailStride
	}
	return &Store{dataDir: cfg.DataDir, loc: loc, stride: stride, logger: cfg.Logger}, nil
}

// DataDir returns the root directory holding the ticker directories.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Path returns the local file path for ticker.
func (s *Store) Path(ticker domain.Ticker) string {
	return filepath.Join(s.dataDir, string(ticker), ticker.FileName())
}

// EnsureDir creates the ticker directory (and the data directory) if needed.
func (s *Store) EnsureDir(ticker domain.Ticker) error {
	dir := filepath.Dir(s.Path(ticker))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ticker directory '%s': %w", dir, err)
	}
	return nil
}

// Exists reports whether a regular series file is present for ticker.
func (s *Store) Exists(ticker domain.Ticker) bool {
	info, err := os.Stat(s.Path(ticker))
	return err == nil && info.Mode().IsRegular()
}

// ResumePoint returns the timestamp of the last data row, reading only the
// tail of the file. A missing, empty or header-only file yields ok=false and
// no error. A last line that cannot be parsed yields ports.ErrMalformedSeries.
func (s *Store) ResumePoint(ctx context.Context, ticker domain.Ticker) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	path := s.Path(ticker)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to open series file '%s': %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to stat series file '%s': %w", path, err)
	}
	if info.Size() == 0 {
		return time.Time{}, false, nil
	}

	line, err := utils.LastLine(f, info.Size(), s.stride)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last line of '%s': %w", path, err)
	}
	if strings.TrimSpace(line) == "" {
		return time.Time{}, false, nil
	}

	field := strings.Trim(strings.SplitN(line, ",", 2)[0], `" `)
	if utils.IsHeaderField(field) {
		return time.Time{}, false, nil
	}
	if !strings.Contains(line, ",") {
		return time.Time{}, false, fmt.Errorf("%w: last line of '%s' has no fields: %q", ports.ErrMalformedSeries, path, line)
	}

	ts, err := utils.ParseTimestamp(field, s.loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: '%s': %w", ports.ErrMalformedSeries, path, err)
	}
	return ts, true, nil
}

// Header returns the column labels from the first line of the series file.
func (s *Store) Header(ticker domain.Ticker) ([]string, error) {
	path := s.Path(ticker)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open series file '%s': %w", path, err)
	}
	defer f.Close()

	line, err := utils.FirstLine(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read header of '%s': %w", path, err)
	}
	if line == "" {
		return nil, fmt.Errorf("%w: '%s' has no header", ports.ErrMalformedSeries, path)
	}
	fields, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return nil, fmt.Errorf("%w: '%s' header: %w", ports.ErrMalformedSeries, path, err)
	}
	if !utils.IsHeaderField(fields[0]) {
		return nil, fmt.Errorf("%w: '%s' first column is %q, expected %s", ports.ErrMalformedSeries, path, fields[0], timestampColumn)
	}
	return fields, nil
}

// Create writes a new series file with header and every batch row, replacing
// any file already at the path. The file is written next to its final
// location and renamed into place.
func (s *Store) Create(ctx context.Context, ticker domain.Ticker, batch *domain.Batch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.EnsureDir(ticker); err != nil {
		return 0, err
	}
	path := s.Path(ticker)

	tmp, err := os.CreateTemp(filepath.Dir(path), ticker.FileName()+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file for '%s': %w", path, err)
	}
	defer os.Remove(tmp.Name()) // No-op after a successful rename

	columns := batch.FlatColumns()
	header := append([]string{timestampColumn}, columns...)
	n, err := writeRows(tmp, header, identityLayout(len(columns)), batch)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write series file '%s': %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to move series file into place '%s': %w", path, err)
	}

	s.logger.Debug(ctx, "Series file created", map[string]interface{}{"path": path, "rows": n})
	return n, nil
}

// Append adds batch rows to an existing series file without a header. Values
// are laid out in the file's own column order; header columns the batch lacks
// are left empty and batch columns the header lacks are dropped.
func (s *Store) Append(ctx context.Context, ticker domain.Ticker, batch *domain.Batch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path := s.Path(ticker)

	header, err := s.Header(ticker)
	if err != nil {
		return 0, err
	}
	layout, dropped := columnLayout(header[1:], batch.FlatColumns())
	if len(dropped) > 0 {
		s.logger.Warn(ctx, "Dropping provider columns absent from existing file", map[string]interface{}{
			"path":    path,
			"columns": strings.Join(dropped, ","),
		})
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open series file for append '%s': %w", path, err)
	}
	defer f.Close()

	if err := ensureTrailingNewline(f); err != nil {
		return 0, fmt.Errorf("failed to prepare '%s' for append: %w", path, err)
	}

	n, err := writeRows(f, nil, layout, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to append to series file '%s': %w", path, err)
	}
	return n, nil
}

// writeRows writes an optional header then one record per observation.
// layout[i] is the batch value index for output column i, or -1 for an empty cell.
func writeRows(w io.Writer, header []string, layout []int, batch *domain.Batch) (int, error) {
	writer := csv.NewWriter(w)

	if header != nil {
		if err := writer.Write(header); err != nil {
			return 0, err
		}
	}

	record := make([]string, len(layout)+1)
	for _, row := range batch.Rows {
		record[0] = utils.FormatTimestamp(row.Time)
		for i, idx := range layout {
			record[i+1] = ""
			if idx >= 0 && idx < len(row.Values) {
				record[i+1] = utils.FormatValue(row.Values[idx])
			}
		}
		if err := writer.Write(record); err != nil {
			return 0, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, err
	}
	return len(batch.Rows), nil
}

func identityLayout(n int) []int {
	layout := make([]int, n)
	for i := range layout {
		layout[i] = i
	}
	return layout
}

// columnLayout maps each existing file column to its index in the batch columns.
func columnLayout(fileColumns, batchColumns []string) (layout []int, dropped []string) {
	index := make(map[string]int, len(batchColumns))
	for i, c := range batchColumns {
		index[strings.ToLower(c)] = i
	}

	layout = make([]int, len(fileColumns))
	used := make(map[int]bool, len(fileColumns))
	for i, c := range fileColumns {
		layout[i] = -1
		if idx, ok := index[strings.ToLower(strings.TrimSpace(c))]; ok {
			layout[i] = idx
			used[idx] = true
		}
	}
	for i, c := range batchColumns {
		if !used[i] {
			dropped = append(dropped, c)
		}
	}
	return layout, dropped
}

// ensureTrailingNewline terminates a last line that was written without one.
func ensureTrailingNewline(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte("\n"))
	return err
}
