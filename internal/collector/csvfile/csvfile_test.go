package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/replay/internal/collector"
	"github.com/newthinker/replay/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `Date,Open,High,Low,Close,Volume
2024-01-02,10,11,9,10.5,1000
2024-01-03,10.5,12,10,11.5,1200
2024-01-04,11.5,12,11,11,
`

func TestCSVFile_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*CSVFile)(nil)
}

func TestParse(t *testing.T) {
	bars, err := Parse(strings.NewReader(sample), "TEST", "1d")
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, int64(1000), bars[0].Volume)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[1].Time)
	assert.Equal(t, int64(0), bars[2].Volume)
	assert.Equal(t, "TEST", bars[2].Symbol)
}

func TestParse_CloseOnly(t *testing.T) {
	bars, err := Parse(strings.NewReader("time,close\n2024-01-02T09:30:00Z,5\n"), "X", "5m")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 5.0, bars[0].Close)
	assert.Equal(t, 9, bars[0].Time.Hour())
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"no close":   "time,open\n2024-01-02,1\n",
		"no time":    "close\n1\n",
		"bad close":  "time,close\n2024-01-02,abc\n",
		"bad time":   "time,close\nyesterday,1\n",
		"bad volume": "time,close,volume\n2024-01-02,1,lots\n",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input), "X", "1d")
			assert.Error(t, err)
		})
	}
}

func TestCSVFile_FetchHistory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TEST.csv"), []byte(sample), 0644))

	c := New("")
	require.NoError(t, c.Init(collector.Config{Extra: map[string]any{"dir": dir}}))

	ctx := context.Background()
	all, err := c.FetchHistory(ctx, "TEST", time.Time{}, time.Time{}, "1d")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	start := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	ranged, err := c.FetchHistory(ctx, "TEST", start, start.AddDate(0, 0, 1), "1d")
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 11.5, ranged[0].Close)

	_, err = c.FetchHistory(ctx, "MISSING", time.Time{}, time.Time{}, "1d")
	assert.ErrorIs(t, err, core.ErrSymbolNotFound)

	_, err = c.FetchHistory(ctx, "../TEST", time.Time{}, time.Time{}, "1d")
	assert.ErrorIs(t, err, core.ErrSymbolNotFound)
}

func TestCSVFile_InitWithoutDir(t *testing.T) {
	err := New("").Init(collector.Config{})
	assert.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestCSVFile_FetchHistory_IntradayRange(t *testing.T) {
	dir := t.TempDir()
	data := "time,close\n" +
		"2024-01-02T14:30:00Z,10\n" +
		"2024-01-03T00:00:00Z,11\n" +
		"2024-01-03T14:30:00Z,12\n" +
		"2024-01-03T20:55:00Z,13\n" +
		"2024-01-04T00:00:00Z,14\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TEST.csv"), []byte(data), 0644))

	c := New(dir)
	require.NoError(t, c.Init(collector.Config{}))

	start, end, err := core.ParseDateRange("2024-01-03", "2024-01-03")
	require.NoError(t, err)
	bars, err := c.FetchHistory(context.Background(), "TEST", start, end, "5m")
	require.NoError(t, err)

	assert.Equal(t, []float64{11, 12, 13}, core.Closes(bars))
}

func TestParse_TrimsClose(t *testing.T) {
	bars, err := Parse(strings.NewReader("date,open,close\n2024-01-02, 9 ,10.5 \n"), "X", "1d")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, 9.0, bars[0].Open)
}
