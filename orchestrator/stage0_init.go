package orchestrator

import (
	"fmt"
	"time"

	"chadboar/heartbeat-core/state"
)

// loadPortfolio is Stage 0 of spec.md section 2's control-flow diagram:
// it loads the portfolio from disk and rolls over the daily counters if
// the calendar day has changed since the last cycle.
func loadPortfolio(statePath string, now time.Time) (*state.Portfolio, error) {
	p, err := state.Load(statePath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: stage 0 load state: %w", err)
	}
	p.RolloverDaily(now)
	return p, nil
}
