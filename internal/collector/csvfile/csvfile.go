// Package csvfile loads bars from per-symbol CSV files on disk.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/replay/internal/collector"
	"github.com/newthinker/replay/internal/core"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// CSVFile reads <dir>/<SYMBOL>.csv. The header must name at least a
// time (or date) column and a close column; open, high, low and volume
// are optional.
type CSVFile struct {
	dir string
}

// New creates a CSV collector rooted at dir
func New(dir string) *CSVFile {
	return &CSVFile{dir: dir}
}

func (c *CSVFile) Name() string {
	return "csv"
}

// Init applies cfg. Extra["dir"] overrides the data directory.
func (c *CSVFile) Init(cfg collector.Config) error {
	if d, ok := cfg.Extra["dir"].(string); ok && d != "" {
		c.dir = d
	}
	if c.dir == "" {
		return core.WrapError(core.ErrConfigMissing, errors.New("csv data directory not set"))
	}
	return nil
}

func (c *CSVFile) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if symbol == "" || strings.ContainsAny(symbol, `/\`) || strings.Contains(symbol, "..") {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("invalid symbol %q", symbol))
	}

	f, err := os.Open(filepath.Join(c.dir, symbol+".csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.WrapError(core.ErrSymbolNotFound, err)
		}
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	defer f.Close()

	bars, err := Parse(f, symbol, interval)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("%s: %w", symbol, err))
	}

	out := bars[:0]
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && !b.Time.Before(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Parse decodes CSV bars in file order. Ordering is not checked here.
func Parse(r io.Reader, symbol, interval string) ([]core.OHLCV, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	timeCol, ok := cols["time"]
	if !ok {
		if timeCol, ok = cols["date"]; !ok {
			return nil, errors.New("missing time column")
		}
	}
	closeCol, ok := cols["close"]
	if !ok {
		return nil, errors.New("missing close column")
	}

	var bars []core.OHLCV
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTime(rec[timeCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(rec[closeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: close: %w", line, err)
		}

		bar := core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Close:    closePrice,
			Time:     ts,
		}
		if bar.Open, err = optionalFloat(rec, cols, "open"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if bar.High, err = optionalFloat(rec, cols, "high"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if bar.Low, err = optionalFloat(rec, cols, "low"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		vol, err := optionalFloat(rec, cols, "volume")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar.Volume = int64(vol)

		bars = append(bars, bar)
	}

	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func optionalFloat(rec []string, cols map[string]int, name string) (float64, error) {
	i, ok := cols[name]
	if !ok || strings.TrimSpace(rec[i]) == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
