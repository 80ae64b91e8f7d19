// Package orchestrator runs one heartbeat cycle end to end: the guard
// cascade, the watchdog pass over open positions, candidate scoring,
// trade execution, and cycle finalization (state persistence, report
// emission, and the HEARTBEAT bead). It is the only package that calls
// guards, datasource, scorer, watchdog, executor, signer, and report
// together, per spec.md section 2's control-flow diagram.
package orchestrator

import (
	"time"

	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/state"
)

// StageContext carries everything a stage needs and everything it can
// mutate: the remaining time budget (which, once exhausted, degrades
// every later stage to observe-only), the in-memory state snapshot, and
// the accumulated cycle errors. Stages never abort the cycle on error;
// they append to Errors and continue, per spec.md section 7's failure
// semantics.
type StageContext struct {
	CycleNumber     int
	Now             time.Time
	RemainingBudget time.Duration
	StateSnapshot   *state.Portfolio
	Config          *config.RiskConfig
	ObserveOnly     bool
	Errors          []cycleerrors.Error

	factBeadByMint   map[string]string
	signalBeadByMint map[string]string
}

func (sc *StageContext) addError(e cycleerrors.Error) {
	sc.Errors = append(sc.Errors, e)
}

// budgetExceeded degrades every remaining stage to observe-only once the
// cycle's hard time budget (spec.md section 2, 120s default) is spent.
func (sc *StageContext) budgetExceeded() bool {
	return sc.RemainingBudget <= 0
}

// StageResult is the per-stage outcome folded back into StageContext.
type StageResult struct {
	ObserveOnly bool
	Err         error
}

// CycleResult summarizes one completed heartbeat cycle for the caller
// (cmd/heartbeatd's loop and the scenario tests).
type CycleResult struct {
	CycleNumber      int
	Halted           bool
	HaltGuard        string
	HaltReason       string
	ObserveOnly      bool
	Errors           []cycleerrors.Error
	ExitsFired       int
	CandidatesScored int
	AutoExecutions   int
	Report           string
}
