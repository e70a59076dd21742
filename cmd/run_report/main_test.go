package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intradaySync/internal/domain"
)

func TestPrintRuns(t *testing.T) {
	started := time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC)
	runs := []*domain.RunRecord{
		{RunID: "0f8e6b4a-1111-2222-3333-444455556666", StartedAt: started, FinishedAt: started.Add(95 * time.Second),
			Status: domain.RunStatusCompleted, Tickers: 8, Failures: 1},
		{RunID: "abc", StartedAt: started.Add(-time.Hour), Status: domain.RunStatusAborted, Note: "remote session failed"},
	}

	var buf bytes.Buffer
	printRuns(&buf, runs, time.FixedZone("IST", 19800))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Status")
	assert.Contains(t, lines[1], "2024-01-02 09:30")
	assert.Contains(t, lines[1], "0f8e6b4a ")
	assert.Contains(t, lines[1], "1m35s")
	assert.Contains(t, lines[2], "aborted")
	assert.Contains(t, lines[2], "remote session failed")
}

func TestPrintHistory(t *testing.T) {
	rec := time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC)
	results := []*domain.TickerResult{
		{RunID: "r1", Ticker: "^NSEI", Outcome: domain.OutcomeAppended, RowsWritten: 12, ResumePoint: rec.Add(-time.Hour), LastRow: rec, RecordedAt: rec},
		{RunID: "r2", Ticker: "^NSEI", Outcome: domain.OutcomeFailed, Error: "rate limited", RecordedAt: rec},
	}

	var buf bytes.Buffer
	printHistory(&buf, results, time.UTC)
	out := buf.String()
	assert.Contains(t, out, "appended")
	assert.Contains(t, out, "2024-01-02 03:00")
	assert.Contains(t, out, "rate limited")
	assert.Equal(t, "-", formatTime(time.Time{}, time.UTC))
}
