package orchestrator

import (
	"context"

	"chadboar/heartbeat-core/datasource"
	"chadboar/heartbeat-core/observability/metrics"
	"chadboar/heartbeat-core/watchdog"
)

// runWatchdog is Stage 1: evaluate every open position against a fresh
// price quote and return the decisions that fire, without mutating
// state yet — mutation happens in Stage 1b against a freshly re-read
// snapshot, per the mid-cycle-writer re-read rule.
func runWatchdog(ctx context.Context, sc *StageContext, sources *datasource.Sources) []watchdog.ExitDecision {
	var fired []watchdog.ExitDecision
	if sc.ObserveOnly {
		return fired
	}

	cfg := sc.Config
	for _, pos := range sc.StateSnapshot.Positions {
		tier := cfg.TierFor(pos.EntryMarketCapUSD)
		quote := sources.FetchPriceQuote(ctx, pos.TokenMint)

		liquidityDropFactor := 0.4
		decision := watchdog.Evaluate(pos, quote, tier, liquidityDropFactor, sc.Now)
		if decision.Fire {
			fired = append(fired, decision)
			metrics.Heartbeat().Exit(string(decision.Reason), string(decision.Urgency))
		}
	}
	return fired
}
