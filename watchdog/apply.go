package watchdog

import (
	"fmt"
	"time"

	"chadboar/heartbeat-core/state"
)

// ConsecutiveLossLimit halves the next AUTO_EXECUTE sizing once reached,
// per spec.md section 4.3.
const ConsecutiveLossLimit = 3

// DailyLossHaltPct halts the remainder of the trading day once daily loss
// exceeds this percentage, per spec.md section 4.3.
const DailyLossHaltPct = 10.0

// ExitOutcome is the confirmed result of submitting an exit decision: the
// actual SOL received and SOL portion spent from the confirmed swap,
// never estimated locally.
type ExitOutcome struct {
	SOLReceived    float64
	SOLPortionSpent float64
	IsPaperTrade   bool
}

// ApplyExit mutates portfolio state for one confirmed exit: partial exits
// set the tier's monotonic flag; full exits remove exactly the first
// position entry matching the mint (the duplicate-entry invariant); both
// update balance, win/loss counters, and consecutive-loss tracking, with
// paper trades tracked separately and never touching the real counters
// that halve sizing or halt the day.
func ApplyExit(p *state.Portfolio, decision ExitDecision, outcome ExitOutcome, now time.Time) error {
	if !decision.Fire {
		return fmt.Errorf("watchdog: ApplyExit called with a non-firing decision")
	}

	pnlSOL := outcome.SOLReceived - outcome.SOLPortionSpent
	win := pnlSOL >= 0

	switch decision.Kind {
	case ExitPartial:
		applyPartialFlag(p, decision)
		p.CurrentBalanceSOL += outcome.SOLReceived
	case ExitFull:
		if _, ok := p.RemoveFirstPosition(decision.Position.TokenMint); !ok {
			return fmt.Errorf("watchdog: no open position for mint %s", decision.Position.TokenMint)
		}
		p.CurrentBalanceSOL += outcome.SOLReceived
	default:
		return fmt.Errorf("watchdog: unknown exit kind %q", decision.Kind)
	}

	if outcome.IsPaperTrade {
		if !win {
			p.PaperConsecLosses++
		} else {
			p.PaperConsecLosses = 0
		}
		return nil
	}

	p.TotalTrades++
	if win {
		p.TotalWins++
		p.ConsecutiveLosses = 0
	} else {
		p.TotalLosses++
		p.ConsecutiveLosses++
	}

	if p.StartingBalanceSOL > 0 {
		lossSOL := -pnlSOL
		if lossSOL > 0 {
			p.DailyLossPct += (lossSOL / p.StartingBalanceSOL) * 100
		}
	}
	if p.DailyLossPct > DailyLossHaltPct {
		p.Halted = true
		haltedAt := now.UTC()
		p.HaltedAt = &haltedAt
		p.HaltReason = "daily loss limit exceeded"
	}
	return nil
}

// applyPartialFlag sets the monotonic tier1/tier2 exited flag on every
// position entry matching the mint that hasn't already been flagged,
// mirroring how duplicate-mint positions share a single watchdog
// evaluation in spec.md section 4.3.
func applyPartialFlag(p *state.Portfolio, decision ExitDecision) {
	for i := range p.Positions {
		if p.Positions[i].TokenMint != decision.Position.TokenMint {
			continue
		}
		switch decision.Reason {
		case ReasonTakeProfit1:
			if !p.Positions[i].Tier1Exited {
				p.Positions[i].Tier1Exited = true
				return
			}
		case ReasonTakeProfit2:
			if !p.Positions[i].Tier2Exited {
				p.Positions[i].Tier2Exited = true
				return
			}
		}
	}
}

// SizingMultiplier halves AUTO_EXECUTE sizing once the consecutive-loss
// limit is reached; paper-trade losses never contribute to this count.
func SizingMultiplier(p *state.Portfolio) float64 {
	if p.ConsecutiveLosses >= ConsecutiveLossLimit {
		return 0.5
	}
	return 1.0
}
