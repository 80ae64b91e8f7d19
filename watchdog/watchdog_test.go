package watchdog

import (
	"testing"
	"time"

	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/state"
)

func sampleTier() config.ExitTier {
	return config.ExitTier{
		MaxEntryMcapUSD: 500_000,
		TP1PnLPct:       60, TP1SellFrac: 0.50,
		TP2PnLPct: 150, TP2SellFrac: 0.30,
		TrailPct:       20,
		DecayWindow:    30 * time.Minute,
		StopLossPnLPct: -25,
	}
}

func TestPnLPctIsMarketCapAnchored(t *testing.T) {
	got := PnLPct(200_000, 136_000)
	want := -32.0
	if diff := got - want; diff > 0.01 || diff < -0.01 {
		t.Fatalf("expected pnl_pct ~= %.2f, got %.2f", want, got)
	}
}

func TestPnLPctZeroWhenEitherSideNonPositive(t *testing.T) {
	if PnLPct(0, 100) != 0 {
		t.Fatal("expected 0 pnl with zero entry mcap")
	}
	if PnLPct(100, 0) != 0 {
		t.Fatal("expected 0 pnl with zero current mcap")
	}
}

func TestStopLossFiresCriticalFullExit(t *testing.T) {
	pos := state.Position{
		TokenMint:         "mintX",
		EntryMarketCapUSD: 200_000,
		EntryTime:         time.Now().Add(-10 * time.Minute),
		PlayType:          state.PlayAccumulation,
	}
	quote := PriceQuote{CurrentMarketCapUSD: 136_000, Available: true}

	decision := Evaluate(pos, quote, sampleTier(), 0.4, time.Now())

	if !decision.Fire {
		t.Fatal("expected stop-loss to fire")
	}
	if decision.Reason != ReasonStopLoss {
		t.Fatalf("expected STOP_LOSS, got %v", decision.Reason)
	}
	if decision.Urgency != UrgencyCritical {
		t.Fatalf("expected CRITICAL urgency, got %v", decision.Urgency)
	}
	if decision.Kind != ExitFull {
		t.Fatalf("expected full exit, got %v", decision.Kind)
	}

	steps := SlippageSteps(decision.Urgency, []int{500, 1500, 4900})
	if len(steps) != 3 || steps[0] != 500 || steps[2] != 4900 {
		t.Fatalf("expected full escalation ladder for CRITICAL urgency, got %+v", steps)
	}
}

func TestPriceFetchFailureForcesFullCriticalExit(t *testing.T) {
	pos := state.Position{TokenMint: "mintY", EntryMarketCapUSD: 100_000}
	quote := PriceQuote{Available: false}

	decision := Evaluate(pos, quote, sampleTier(), 0.4, time.Now())
	if !decision.Fire || decision.Urgency != UrgencyCritical || decision.Kind != ExitFull {
		t.Fatalf("expected forced critical full exit on price fetch failure, got %+v", decision)
	}
}

func TestApplyExitOnFullExitRemovesOnlyFirstDuplicateMint(t *testing.T) {
	p := &state.Portfolio{
		StartingBalanceSOL: 14,
		CurrentBalanceSOL:  10,
		Positions: []state.Position{
			{TokenMint: "mintX", EntryAmountToken: 1000, EntryMarketCapUSD: 200_000},
			{TokenMint: "mintX", EntryAmountToken: 2000, EntryMarketCapUSD: 210_000},
			{TokenMint: "mintX", EntryAmountToken: 3000, EntryMarketCapUSD: 220_000},
		},
	}
	decision := ExitDecision{
		Position: p.Positions[0],
		Fire:     true,
		Kind:     ExitFull,
		Reason:   ReasonStopLoss,
		Urgency:  UrgencyCritical,
		SellFrac: 1.0,
	}
	outcome := ExitOutcome{SOLReceived: 1.0, SOLPortionSpent: 1.5}

	if err := ApplyExit(p, decision, outcome, time.Now()); err != nil {
		t.Fatalf("apply exit: %v", err)
	}

	if len(p.Positions) != 2 {
		t.Fatalf("expected 2 remaining positions, got %d", len(p.Positions))
	}
	if p.Positions[0].EntryAmountToken != 2000 || p.Positions[1].EntryAmountToken != 3000 {
		t.Fatalf("expected the remaining two untouched duplicate entries preserved in order, got %+v", p.Positions)
	}
	if p.TotalLosses != 1 {
		t.Fatalf("expected total_losses incremented for a losing exit, got %d", p.TotalLosses)
	}
	if p.ConsecutiveLosses != 1 {
		t.Fatalf("expected consecutive_losses incremented, got %d", p.ConsecutiveLosses)
	}
}

func TestApplyExitPaperTradeNeverTouchesRealConsecutiveLosses(t *testing.T) {
	p := &state.Portfolio{
		StartingBalanceSOL: 14,
		Positions: []state.Position{
			{TokenMint: "mintZ"},
		},
	}
	decision := ExitDecision{
		Position: p.Positions[0],
		Fire:     true,
		Kind:     ExitFull,
		Reason:   ReasonStopLoss,
		Urgency:  UrgencyCritical,
	}
	outcome := ExitOutcome{SOLReceived: 0.5, SOLPortionSpent: 1.0, IsPaperTrade: true}

	if err := ApplyExit(p, decision, outcome, time.Now()); err != nil {
		t.Fatalf("apply exit: %v", err)
	}

	if p.ConsecutiveLosses != 0 {
		t.Fatalf("expected real consecutive_losses untouched by a paper trade, got %d", p.ConsecutiveLosses)
	}
	if p.PaperConsecLosses != 1 {
		t.Fatalf("expected paper_consecutive_losses incremented, got %d", p.PaperConsecLosses)
	}
	if p.TotalTrades != 0 {
		t.Fatalf("expected total_trades untouched by a paper trade, got %d", p.TotalTrades)
	}
}

func TestSizingMultiplierHalvesAtConsecutiveLossLimit(t *testing.T) {
	p := &state.Portfolio{ConsecutiveLosses: 3}
	if SizingMultiplier(p) != 0.5 {
		t.Fatalf("expected 0.5x sizing multiplier at the loss limit, got %f", SizingMultiplier(p))
	}
	p.ConsecutiveLosses = 1
	if SizingMultiplier(p) != 1.0 {
		t.Fatalf("expected full sizing below the loss limit, got %f", SizingMultiplier(p))
	}
}

func TestTakeProfit1FiresPartialExitWithoutRemovingPosition(t *testing.T) {
	pos := state.Position{TokenMint: "mintA", EntryMarketCapUSD: 100_000, EntryTime: time.Now()}
	quote := PriceQuote{CurrentMarketCapUSD: 170_000, Available: true} // +70% pnl, crosses TP1 (60%) not TP2 (150%)

	decision := Evaluate(pos, quote, sampleTier(), 0.4, time.Now())
	if !decision.Fire || decision.Kind != ExitPartial || decision.Reason != ReasonTakeProfit1 {
		t.Fatalf("expected partial TP1 exit, got %+v", decision)
	}
}
