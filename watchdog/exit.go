package watchdog

import (
	"time"

	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/state"
)

// Evaluate computes the exit decision for one open position this cycle,
// implementing spec.md section 4.3 in priority order: a failed price fetch
// always wins (100% urgency, full exit), then stop-loss, then
// liquidity-drop, then trailing-stop, then take-profit tiers (TP2 before
// TP1, since crossing TP2 implies TP1 already fired), then time decay.
func Evaluate(pos state.Position, quote PriceQuote, tier config.ExitTier, liquidityDropFactor float64, now time.Time) ExitDecision {
	if !quote.Available {
		return ExitDecision{
			Position: pos,
			Fire:     true,
			Kind:     ExitFull,
			Reason:   ReasonPriceFetchFailed,
			Urgency:  UrgencyCritical,
			SellFrac: 1.0,
		}
	}

	pnl := PnLPct(pos.EntryMarketCapUSD, quote.CurrentMarketCapUSD)
	age := AgeMinutes(pos, now)

	if pnl <= tier.StopLossPnLPct {
		return ExitDecision{
			Position: pos, Fire: true, Kind: ExitFull, Reason: ReasonStopLoss,
			Urgency: UrgencyCritical, SellFrac: 1.0, PnLPct: pnl, AgeMin: age,
		}
	}

	if liquidityDropFactor > 0 && pos.EntryLiquidity > 0 &&
		quote.CurrentLiquidityUSD < pos.EntryLiquidity*liquidityDropFactor {
		return ExitDecision{
			Position: pos, Fire: true, Kind: ExitFull, Reason: ReasonLiquidityDrop,
			Urgency: UrgencyHigh, SellFrac: 1.0, PnLPct: pnl, AgeMin: age,
		}
	}

	if pnl > 0 && quote.Peak > 0 {
		drawdownPct := ((quote.Peak - quote.CurrentMarketCapUSD) / quote.Peak) * 100
		if drawdownPct >= tier.TrailPct {
			return ExitDecision{
				Position: pos, Fire: true, Kind: ExitFull, Reason: ReasonTrailingStop,
				Urgency: UrgencyHigh, SellFrac: 1.0, PnLPct: pnl, AgeMin: age,
			}
		}
	}

	if pnl >= tier.TP2PnLPct && !pos.Tier2Exited {
		return ExitDecision{
			Position: pos, Fire: true, Kind: ExitPartial, Reason: ReasonTakeProfit2,
			Urgency: UrgencyNormal, SellFrac: tier.TP2SellFrac, PnLPct: pnl, AgeMin: age,
		}
	}
	if pnl >= tier.TP1PnLPct && !pos.Tier1Exited {
		return ExitDecision{
			Position: pos, Fire: true, Kind: ExitPartial, Reason: ReasonTakeProfit1,
			Urgency: UrgencyNormal, SellFrac: tier.TP1SellFrac, PnLPct: pnl, AgeMin: age,
		}
	}

	window := decayWindow(tier.DecayWindow, pos.PlayType)
	absPnL := pnl
	if absPnL < 0 {
		absPnL = -absPnL
	}
	if age >= window.Minutes() && absPnL < 5 {
		return ExitDecision{
			Position: pos, Fire: true, Kind: ExitFull, Reason: ReasonTimeDecay,
			Urgency: UrgencyNormal, SellFrac: 1.0, PnLPct: pnl, AgeMin: age,
		}
	}

	return ExitDecision{Position: pos, Fire: false, PnLPct: pnl, AgeMin: age}
}
