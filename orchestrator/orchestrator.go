package orchestrator

import (
	"context"
	"time"

	"chadboar/heartbeat-core/beadchain"
	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/guards"
	"chadboar/heartbeat-core/observability/metrics"
	"chadboar/heartbeat-core/report"
	"chadboar/heartbeat-core/state"

	"github.com/google/uuid"
)

// RunHeartbeat executes one complete heartbeat cycle: the guard
// cascade, Stage 0 context init, Stage 1/1b watchdog and exit
// execution, Stage 2 oracle fan-out, Stage 3 narrative freshness,
// Stage 4 scoring and trade execution, and Stage 5 finalization. It
// always returns a CycleResult — a halted or degraded cycle is a
// normal outcome, not an error — and only returns a non-nil error when
// the cycle could not even be initialized (state failed to load).
func RunHeartbeat(ctx context.Context, now time.Time, cycleNumber int, cfg *config.RiskConfig, deps Dependencies) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{CycleNumber: cycleNumber}

	p, err := loadPortfolio(deps.StatePath, now)
	if err != nil {
		metrics.Heartbeat().CycleCompleted("state_load_failed")
		return nil, err
	}

	sc := &StageContext{
		CycleNumber:     cycleNumber,
		Now:             now,
		RemainingBudget: cfg.CycleBudget,
		StateSnapshot:   p,
		Config:          cfg,
	}

	verdict := guards.Run(ctx, cfg, p, deps.Guards)
	sc.Errors = append(sc.Errors, verdict.Warnings...)

	if verdict.Halted {
		result.Halted = true
		result.HaltGuard = verdict.HaltGuard
		result.HaltReason = verdict.HaltReason
		result.Errors = sc.Errors
		finalizeHalted(deps, sc, result)
		metrics.Heartbeat().CycleCompleted("halted")
		return result, nil
	}

	// Stage 1 / 1b: watchdog evaluation and confirmed exits.
	decisions := runWatchdog(ctx, sc, deps.Sources)
	result.ExitsFired = runExitExecutor(ctx, sc, deps, decisions)
	sc.RemainingBudget = cfg.CycleBudget - time.Since(start)
	if sc.budgetExceeded() {
		sc.ObserveOnly = true
		metrics.Heartbeat().ObserveOnlyCycle()
	}

	// Stage 2: oracle fan-out over this cycle's candidates.
	candidates := runOracleFanout(ctx, sc, deps)
	sc.RemainingBudget = cfg.CycleBudget - time.Since(start)
	if sc.budgetExceeded() {
		sc.ObserveOnly = true
		metrics.Heartbeat().ObserveOnlyCycle()
	}

	// Stage 3: narrative freshness.
	runNarrativeCheck(sc, candidates)

	// Stage 4: score and execute.
	scoreResult := runScoreAndExecute(ctx, sc, deps, candidates)
	result.CandidatesScored = scoreResult.CandidatesScored
	result.AutoExecutions = scoreResult.AutoExecutions

	result.ObserveOnly = sc.ObserveOnly
	result.Errors = sc.Errors

	// Stage 5: finalize.
	finalizeCycle(deps, sc, result)

	outcome := "completed"
	if sc.ObserveOnly {
		outcome = "observe_only"
	}
	metrics.Heartbeat().CycleCompleted(outcome)
	metrics.Heartbeat().ObserveStageLatency("cycle", time.Since(start).Seconds())
	return result, nil
}

// finalizeHalted is Stage 5 for a halted cycle: still persist the
// heartbeat timestamp, still emit the HEARTBEAT bead and latest.md, but
// touch nothing else, per spec.md section 4.1's halt failure semantics.
func finalizeHalted(deps Dependencies, sc *StageContext, result *CycleResult) {
	p := sc.StateSnapshot
	p.LastHeartbeatTime = sc.Now
	_ = state.Save(deps.StatePath, p)

	appendHeartbeatBead(deps.BeadStore, sc, result, nil)
	result.Report = report.Render(reportSummary(sc, result))
	_ = report.WriteLatestMD(deps.LatestMDPath, reportSummary(sc, result))
}

// finalizeCycle is Stage 5 for a normal cycle: re-read state one final
// time, stamp the monotonic heartbeat timestamp, regenerate latest.md,
// append the HEARTBEAT bead, and check whether a Merkle batch should be
// sealed.
func finalizeCycle(deps Dependencies, sc *StageContext, result *CycleResult) {
	p, err := state.Load(deps.StatePath)
	if err != nil {
		sc.addError(cycleerrors.New("finalize", cycleerrors.StateIOFailure, "final state re-read failed").WithCause(err).WithTier(cycleerrors.Critical))
		p = sc.StateSnapshot
	}
	p.LastHeartbeatTime = sc.Now
	if err := state.Save(deps.StatePath, p); err != nil {
		sc.addError(cycleerrors.New("finalize", cycleerrors.StateIOFailure, "final state save failed").WithCause(err).WithTier(cycleerrors.Critical))
	}
	sc.StateSnapshot = p
	result.Errors = sc.Errors

	metrics.Heartbeat().SetBalance(p.CurrentBalanceSOL)
	metrics.Heartbeat().SetOpenPositions(p.OpenPositionCount())

	heartbeatBeadID := appendHeartbeatBead(deps.BeadStore, sc, result, nil)
	checkAnchorTrigger(deps.BeadStore, deps.ShadowFieldPath, heartbeatBeadID)

	result.Report = report.Render(reportSummary(sc, result))
	_ = report.WriteLatestMD(deps.LatestMDPath, reportSummary(sc, result))
}

func reportSummary(sc *StageContext, result *CycleResult) report.Summary {
	return report.Summary{
		CycleNumber:    sc.CycleNumber,
		Portfolio:      sc.StateSnapshot,
		Halted:         result.Halted,
		HaltGuard:      result.HaltGuard,
		HaltReason:     result.HaltReason,
		ObserveOnly:    sc.ObserveOnly,
		ExitsFired:     result.ExitsFired,
		AutoExecutions: result.AutoExecutions,
		Errors:         sc.Errors,
		Now:            sc.Now,
	}
}

// appendHeartbeatBead records this cycle's outcome as a HEARTBEAT bead
// on the dedicated "heartbeat" stream; its own hash-chain continuity
// (via the store's stream-head resolution) is what lets VerifyChain
// attest to an unbroken cycle history independent of any per-mint
// stream.
func appendHeartbeatBead(store *beadchain.Store, sc *StageContext, result *CycleResult, lineage []string) string {
	if store == nil {
		return ""
	}
	prevLineage, isRoot := previousHeartbeatLineage(store)
	bead, err := store.Append(beadchain.Draft{
		BeadType:      beadchain.BeadHeartbeat,
		TemporalClass: beadchain.TemporalPattern,
		SourceRef:     beadchain.SourceRef{SourceType: "orchestrator", SourceID: "heartbeat"},
		Lineage:       prevLineage,
		Content: beadchain.HeartbeatContent{
			CycleNumber:   sc.CycleNumber,
			ObserveOnly:   sc.ObserveOnly,
			Halted:        result.Halted,
			HaltReason:    result.HaltReason,
			BalanceSOL:    balanceOf(sc.StateSnapshot),
			OpenPositions: openPositionsOf(sc.StateSnapshot),
		},
		Stream: "heartbeat",
	}, isRoot)
	if err != nil || bead == nil {
		return ""
	}
	metrics.Heartbeat().BeadWritten(string(beadchain.BeadHeartbeat))
	return bead.BeadID.String()
}

// previousHeartbeatLineage looks up the most recently written HEARTBEAT
// bead so every new one lineage-links to the one before it, per
// HeartbeatContent's "lineage-linked to the prior one" contract. The very
// first heartbeat in a fresh chain has nothing to link to and is root.
func previousHeartbeatLineage(store *beadchain.Store) ([]uuid.UUID, bool) {
	beads, err := store.Query(beadchain.Filter{BeadType: beadchain.BeadHeartbeat})
	if err != nil || len(beads) == 0 {
		return nil, true
	}
	return []uuid.UUID{beads[len(beads)-1].BeadID}, false
}

func balanceOf(p *state.Portfolio) float64 {
	if p == nil {
		return 0
	}
	return p.CurrentBalanceSOL
}

func openPositionsOf(p *state.Portfolio) int {
	if p == nil {
		return 0
	}
	return p.OpenPositionCount()
}

// checkAnchorTrigger seals a Merkle batch if the beadchain decides a
// bead-count or time trigger has fired. No decision bead is passed to
// ShouldSeal, so the DECISION_BOUNDARY trigger does not fire from here and
// the heartbeat bead id it receives is not used. Sealing
// failure never fails the cycle, it's retried next cycle. A sealed batch
// also re-exports the shadow field, when configured, so the Parquet
// snapshot of rejected proposals stays anchored to the same cadence as
// the chain itself.
func checkAnchorTrigger(store *beadchain.Store, shadowFieldPath, triggerBeadIDStr string) {
	if store == nil {
		return
	}
	should, triggerType, err := store.ShouldSeal(nil)
	if err != nil || !should {
		return
	}
	if _, err := store.SealBatch(triggerType, nil); err != nil {
		return
	}
	metrics.Heartbeat().MerkleBatchSealed()

	if shadowFieldPath != "" {
		_, _ = store.ExportShadowField(shadowFieldPath)
	}
}
