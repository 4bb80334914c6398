package notifier

import (
	"context"

	"github.com/newthinker/replay/internal/report"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier announces finished backtest batches
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Notify delivers one batch summary
	Notify(ctx context.Context, batch report.Batch) error
}
