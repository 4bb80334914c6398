package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/replay/internal/core"
	"go.uber.org/zap"
)

// Engine manages registered strategies
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// GetAll returns all registered strategies
func (e *Engine) GetAll() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		result = append(result, s)
	}
	return result
}

// Names returns the registered strategy names in sorted order
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.strategies))
	for name := range e.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decide runs the named strategy over bars and checks that the result is
// a valid decision sequence parallel to bars.
func (e *Engine) Decide(name string, bars []core.OHLCV) ([]core.Action, error) {
	s, ok := e.Get(name)
	if !ok {
		return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", name))
	}

	decisions, err := s.GenerateDecisions(bars)
	if err != nil {
		e.logger.Warn("strategy analysis failed",
			zap.String("strategy", name),
			zap.Error(err),
		)
		return nil, core.WrapError(core.ErrStrategyFailed, err)
	}

	if len(decisions) != len(bars) {
		return nil, core.WrapError(core.ErrDecisionMismatch,
			fmt.Errorf("strategy %s returned %d decisions for %d bars", name, len(decisions), len(bars)))
	}
	for i, d := range decisions {
		if !d.Valid() {
			return nil, core.WrapError(core.ErrUnknownAction,
				fmt.Errorf("strategy %s, bar %d: %q", name, i, d))
		}
	}

	e.logger.Debug("decisions generated",
		zap.String("strategy", name),
		zap.Int("bars", len(bars)),
		zap.Int("buys", count(decisions, core.ActionBuy)),
		zap.Int("sells", count(decisions, core.ActionSell)),
	)

	return decisions, nil
}

func count(decisions []core.Action, a core.Action) int {
	n := 0
	for _, d := range decisions {
		if d == a {
			n++
		}
	}
	return n
}
