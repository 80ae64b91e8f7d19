package orchestrator

import (
	"context"

	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/executor"
	"chadboar/heartbeat-core/observability/metrics"
	"chadboar/heartbeat-core/state"
	"chadboar/heartbeat-core/watchdog"
)

// runExitExecutor is Stage 1b: submit every firing watchdog decision,
// escalating slippage across the configured ladder on each retry, then
// apply the confirmed outcome to a freshly re-read state snapshot. The
// snapshot is re-read from disk immediately before each mutation so that
// a slow submission never clobbers a concurrent writer's changes, per
// spec.md section 5's mid-cycle-writer rule.
func runExitExecutor(ctx context.Context, sc *StageContext, deps Dependencies, decisions []watchdog.ExitDecision) int {
	fired := 0
	for _, decision := range decisions {
		if sc.budgetExceeded() {
			sc.addError(cycleerrors.New("executor", cycleerrors.StateIOFailure, "cycle budget exhausted before all exits submitted").WithTier(cycleerrors.Warning))
			break
		}

		p, err := state.Load(deps.StatePath)
		if err != nil {
			sc.addError(cycleerrors.New("executor", cycleerrors.StateIOFailure, "re-read state before exit failed").WithCause(err).WithTier(cycleerrors.Critical))
			continue
		}

		idxs := p.PositionsForMint(decision.Position.TokenMint)
		if len(idxs) == 0 {
			continue // already exited earlier this cycle or by a concurrent writer
		}
		pos := p.Positions[idxs[0]]

		tokenAmount := pos.EntryAmountToken * decision.SellFrac
		solPortionSpent := pos.EntryAmountSOL * decision.SellFrac

		ladder := watchdog.SlippageSteps(decision.Urgency, sc.Config.Slippage.StepsBPS)
		var result executor.Result
		var execErr error
		for _, bps := range ladder {
			result, execErr = deps.Executor.Execute(ctx, executor.Request{
				TokenMint:   decision.Position.TokenMint,
				Side:        executor.SideSell,
				TokenAmount: tokenAmount,
				SlippageBPS: bps,
			})
			if execErr == nil && result.Outcome == executor.OutcomeSuccess {
				break
			}
		}
		if execErr != nil {
			sc.addError(cycleerrors.New("executor", cycleerrors.TransactionFailure, "exit submission failed").WithCause(execErr).WithTier(cycleerrors.Critical))
			continue
		}
		if result.Outcome != executor.OutcomeSuccess {
			sc.addError(cycleerrors.New("executor", cycleerrors.TransactionFailure, "exit not confirmed at any slippage step").WithTier(cycleerrors.Critical))
			continue
		}

		outcome := watchdog.ExitOutcome{
			SOLReceived:     result.AmountReceived,
			SOLPortionSpent: solPortionSpent,
			IsPaperTrade:    p.DryRunMode,
		}
		if err := watchdog.ApplyExit(p, decision, outcome, sc.Now); err != nil {
			sc.addError(cycleerrors.New("executor", cycleerrors.StateIOFailure, "apply exit failed").WithCause(err).WithTier(cycleerrors.Critical))
			continue
		}
		if err := state.Save(deps.StatePath, p); err != nil {
			sc.addError(cycleerrors.New("executor", cycleerrors.StateIOFailure, "save state after exit failed").WithCause(err).WithTier(cycleerrors.Critical))
			continue
		}
		sc.StateSnapshot = p
		fired++
		metrics.Heartbeat().SetBalance(p.CurrentBalanceSOL)
		metrics.Heartbeat().SetOpenPositions(p.OpenPositionCount())
	}
	return fired
}
