package orchestrator

import (
	"time"

	"chadboar/heartbeat-core/cycleerrors"
)

// narrativeStalenessWarn flags a candidate whose oracle and narrative
// timestamps are further apart than this; this stage only reports the
// skew, it never discards a candidate itself. The scorer's own
// time-mismatch downgrade (scorer.timeMismatch) is a separate rule that
// fires when the two timestamps are within 5 minutes of each other.
const narrativeStalenessWarn = 3 * time.Minute

// runNarrativeCheck is Stage 3: a lightweight freshness pass over each
// candidate's already-assembled SignalInput (oracle and narrative
// timestamps were stamped during Stage 2's fan-out). It exists as its
// own stage, rather than folded into Stage 2, so a systemic narrative
// outage shows up as its own cycle error tier independent of which
// individual data source failed.
func runNarrativeCheck(sc *StageContext, candidates []candidateSignal) {
	if sc.ObserveOnly {
		return
	}
	for _, c := range candidates {
		skew := c.input.OracleTimestamp.Sub(c.input.NarrativeTimestamp)
		if skew < 0 {
			skew = -skew
		}
		if skew > narrativeStalenessWarn {
			sc.addError(cycleerrors.New("narrative", cycleerrors.SourceUnhealthy, "oracle/narrative timestamp skew exceeds staleness window").WithTier(cycleerrors.Info))
		}
	}
}
