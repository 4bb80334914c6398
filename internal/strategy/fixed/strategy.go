// Package fixed replays a decision sequence prepared outside the process,
// for example by an external signal generator.
package fixed

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/strategy"
)

// Fixed returns a pre-computed decision list unchanged.
type Fixed struct {
	decisions []core.Action
}

// New creates a Fixed strategy over decisions
func New(decisions []core.Action) *Fixed {
	return &Fixed{decisions: append([]core.Action(nil), decisions...)}
}

// Load reads one decision label per line. Blank lines and lines starting
// with '#' are skipped.
func Load(r io.Reader) (*Fixed, error) {
	var decisions []core.Action
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		a, err := core.ParseAction(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		decisions = append(decisions, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading decisions: %w", err)
	}
	return &Fixed{decisions: decisions}, nil
}

func (f *Fixed) Name() string {
	return "fixed"
}

func (f *Fixed) Description() string {
	return fmt.Sprintf("Fixed decisions (%d)", len(f.decisions))
}

func (f *Fixed) Init(cfg strategy.Config) error {
	return nil
}

func (f *Fixed) GenerateDecisions(bars []core.OHLCV) ([]core.Action, error) {
	if len(bars) != len(f.decisions) {
		return nil, core.WrapError(core.ErrDecisionMismatch,
			fmt.Errorf("%d decisions for %d bars", len(f.decisions), len(bars)))
	}
	return append([]core.Action(nil), f.decisions...), nil
}
