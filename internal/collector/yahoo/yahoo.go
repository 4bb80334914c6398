package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/replay/internal/collector"
	"github.com/newthinker/replay/internal/core"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	// DefaultRange is requested when no start time is given
	DefaultRange = "1mo"
)

// chart API intervals keyed by the intervals replay accepts
var intervals = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "60m",
	"1d":  "1d",
	"1wk": "1wk",
}

var ranges = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "ytd": true, "max": true,
}

// validSymbol matches stock symbols like AAPL, MSFT, 600519.SH, 0700.HK, BTC-USD
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,10}([.-][A-Za-z]{1,4})?$`)

func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo fetches bars from the Yahoo Finance chart endpoint
type Yahoo struct {
	client   *http.Client
	baseURL  string
	rng      string
	adjusted bool
}

// New creates a Yahoo collector with default settings
func New() *Yahoo {
	return &Yahoo{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		rng:     DefaultRange,
	}
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// Init applies cfg. Recognized Extra keys:
//
//	base_url  chart endpoint override
//	range     lookback used when FetchHistory gets a zero start ("1mo", "1y", ...)
//	adjusted  use split and dividend adjusted closes
func (y *Yahoo) Init(cfg collector.Config) error {
	if u, ok := cfg.Extra["base_url"].(string); ok && u != "" {
		y.baseURL = strings.TrimSuffix(u, "/")
	}
	if r, ok := cfg.Extra["range"].(string); ok && r != "" {
		if !ranges[r] {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("yahoo: unsupported range %q", r))
		}
		y.rng = r
	}
	if adj, ok := cfg.Extra["adjusted"].(bool); ok {
		y.adjusted = adj
	}
	if cfg.Interval != "" {
		if _, ok := intervals[cfg.Interval]; !ok {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("yahoo: unsupported interval %q", cfg.Interval))
		}
	}
	return nil
}

// toYahooSymbol converts internal symbol format to Yahoo format
func toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// chartURL builds the request for one symbol. A zero start asks for the
// configured range ending now; otherwise an explicit period is sent.
func (y *Yahoo) chartURL(symbol string, start, end time.Time, interval string) (string, error) {
	yi, ok := intervals[interval]
	if !ok {
		return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("yahoo: unsupported interval %q", interval))
	}

	q := url.Values{}
	q.Set("interval", yi)
	if start.IsZero() {
		q.Set("range", y.rng)
	} else {
		if end.IsZero() {
			end = time.Now()
		}
		q.Set("period1", strconv.FormatInt(start.Unix(), 10))
		q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	}
	if y.adjusted {
		q.Set("includeAdjustedClose", "true")
	}
	return fmt.Sprintf("%s/%s?%s", y.baseURL, url.PathEscape(toYahooSymbol(symbol)), q.Encode()), nil
}

// FetchHistory fetches the bars for symbol. Points with a missing close
// are dropped and the rest are returned in the order Yahoo sent them.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrSymbolNotFound, err)
	}
	if interval == "" {
		interval = "1d"
	}
	u, err := y.chartURL(symbol, start, end, interval)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("yahoo has no chart for %s", symbol))
	case resp.StatusCode != http.StatusOK:
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}
	if result.Chart.Error != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data for symbol: %s", symbol))
	}

	return y.toBars(symbol, interval, result.Chart.Result[0]), nil
}

func (y *Yahoo) toBars(symbol, interval string, r chartResult) []core.OHLCV {
	quotes := r.Indicators.Quote[0]
	closes := quotes.Close
	if y.adjusted && len(r.Indicators.AdjClose) > 0 {
		closes = r.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     value(quotes.Open, i),
			High:     value(quotes.High, i),
			Low:      value(quotes.Low, i),
			Close:    *closes[i],
			Volume:   value(quotes.Volume, i),
			Time:     time.Unix(ts, 0).UTC(),
		})
	}
	return bars
}

func value[T int64 | float64](series []*T, i int) T {
	if i < len(series) && series[i] != nil {
		return *series[i]
	}
	return 0
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}
