package watchdog

import (
	"time"

	"chadboar/heartbeat-core/state"
)

// maxAbsPnLPct is the unit-mismatch tripwire of spec.md section 8's
// universal invariant 3: a single position's PnL must never exceed this in
// magnitude. A value beyond this almost always means a price feed returned
// a per-token price instead of a market cap, or vice versa.
const maxAbsPnLPct = 10_000

// PnLPct computes a position's profit/loss strictly from market
// capitalization, per spec.md section 4.3's invariant: never fall back to
// per-token price, which is unit-mismatched between the quoter and the
// price provider.
func PnLPct(entryMcapUSD, currentMcapUSD float64) float64 {
	if entryMcapUSD <= 0 || currentMcapUSD <= 0 {
		return 0.0
	}
	pct := ((currentMcapUSD - entryMcapUSD) / entryMcapUSD) * 100
	if pct > maxAbsPnLPct {
		return maxAbsPnLPct
	}
	if pct < -maxAbsPnLPct {
		return -maxAbsPnLPct
	}
	return pct
}

// AgeMinutes returns how long a position has been open, in minutes.
func AgeMinutes(pos state.Position, now time.Time) float64 {
	return now.Sub(pos.EntryTime).Minutes()
}

// decayWindow halves the graduation play's decay window (minimum 15
// minutes), per spec.md section 4.3.
func decayWindow(base time.Duration, playType state.PlayType) time.Duration {
	if playType != state.PlayGraduation {
		return base
	}
	halved := base / 2
	if halved < 15*time.Minute {
		return 15 * time.Minute
	}
	return halved
}
