package collector

import (
	"context"
	"time"

	"github.com/newthinker/replay/internal/core"
)

// Config holds collector configuration
type Config struct {
	Enabled  bool
	Interval string
	APIKey   string
	Extra    map[string]any
}

// Collector retrieves historical bars for a symbol
type Collector interface {
	// Metadata
	Name() string

	// Lifecycle
	Init(cfg Config) error

	// FetchHistory returns bars in [start, end) ordered by time. A zero
	// start or end leaves that side of the range open.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error)
}
