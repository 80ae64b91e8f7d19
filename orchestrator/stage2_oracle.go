package orchestrator

import (
	"context"
	"sync"
	"time"

	"chadboar/heartbeat-core/beadchain"
	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/observability/metrics"
	"chadboar/heartbeat-core/scorer"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentOracleFetches bounds the Stage 2 fan-out so a burst of
// candidates never exceeds every adapter's configured rate limit at
// once.
const maxConcurrentOracleFetches = 8

// candidateSignal pairs one candidate's assembled SignalInput with the
// FACT bead recorded for it, so Stage 4 can lineage its SIGNAL bead back
// to the same-cycle observation per spec.md section 8's invariant.
type candidateSignal struct {
	mint      string
	input     scorer.SignalInput
	factBeadID string
}

// runOracleFanout is Stage 2: discover this cycle's candidates and fetch
// every data source for each of them concurrently, bounded by a shared
// deadline derived from the remaining cycle budget. A structured
// concurrency group (golang.org/x/sync/errgroup) ensures one slow
// candidate never blocks the others indefinitely.
func runOracleFanout(ctx context.Context, sc *StageContext, deps Dependencies) []candidateSignal {
	if sc.ObserveOnly {
		return nil
	}

	mints, err := discoverCandidates(ctx, deps)
	if err != nil {
		sc.addError(cycleerrors.New("oracle", cycleerrors.SourceUnhealthy, "candidate discovery failed").WithCause(err).WithTier(cycleerrors.Warning))
		return nil
	}
	if len(mints) == 0 {
		return nil
	}

	fanCtx, cancel := context.WithTimeout(ctx, sc.RemainingBudget)
	defer cancel()

	group, gctx := errgroup.WithContext(fanCtx)
	group.SetLimit(maxConcurrentOracleFetches)

	var mu sync.Mutex
	results := make([]candidateSignal, 0, len(mints))

	for _, mint := range mints {
		mint := mint
		group.Go(func() error {
			input := deps.Sources.BuildSignalInput(gctx, mint, sc.Now)
			mu.Lock()
			results = append(results, candidateSignal{mint: mint, input: input})
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait() // BuildSignalInput never errors; it degrades per-source availability instead

	for i := range results {
		results[i].factBeadID = writeFactBead(deps.BeadStore, results[i].mint, results[i].input, sc.Now)
	}
	return results
}

func discoverCandidates(ctx context.Context, deps Dependencies) ([]string, error) {
	if deps.DiscoverCandidates == nil {
		return nil, nil
	}
	return deps.DiscoverCandidates(ctx)
}

// writeFactBead records one candidate's raw oracle/narrative/pulse
// observation as a root FACT bead; it never fails the cycle on a bead
// store error since the candidate can still be scored from the
// in-memory SignalInput.
func writeFactBead(store *beadchain.Store, mint string, in scorer.SignalInput, now time.Time) string {
	if store == nil {
		return ""
	}
	from := now.Add(-5 * time.Minute)
	to := now
	bead, err := store.Append(beadchain.Draft{
		BeadType:      beadchain.BeadFact,
		TemporalClass: beadchain.TemporalObservation,
		WorldTimeFrom: &from,
		WorldTimeTo:   &to,
		SourceRef:     beadchain.SourceRef{SourceType: "oracle_fanout", SourceID: mint},
		Content: beadchain.FactContent{
			Source:  "datasource",
			Summary: "cycle oracle/narrative/pulse observation",
			Fields: map[string]any{
				"entry_market_cap_usd": in.EntryMarketCapUSD,
				"entry_liquidity_usd":  in.EntryLiquidityUSD,
				"whale_count":          in.WhaleCount,
				"volume_spike_multiple": in.VolumeSpikeMultiple,
				"warden_verdict":       in.WardenVerdict,
				"oracle_available":     in.OracleAvailable,
				"narrative_available":  in.NarrativeAvailable,
				"pulse_available":      in.PulseAvailable,
			},
		},
		TokenMint: mint,
		Stream:    mint,
	}, true)
	if err != nil || bead == nil {
		return ""
	}
	metrics.Heartbeat().BeadWritten(string(beadchain.BeadFact))
	return bead.BeadID.String()
}
