package strategy

import (
	"fmt"

	"github.com/newthinker/replay/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Enabled bool
	Params  map[string]any
}

// Strategy labels every bar of a series with a decision.
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	// GenerateDecisions returns one decision per bar, in bar order.
	GenerateDecisions(bars []core.OHLCV) ([]core.Action, error)
}

// IntParam reads an integer parameter, accepting the numeric types that
// config decoders produce.
func IntParam(params map[string]any, key string) (int, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, true, fmt.Errorf("param %s: %v is not an integer", key, v)
		}
		return int(n), true, nil
	}
	return 0, true, fmt.Errorf("param %s: unsupported type %T", key, v)
}

// FloatParam reads a numeric parameter.
func FloatParam(params map[string]any, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	}
	return 0, true, fmt.Errorf("param %s: unsupported type %T", key, v)
}
