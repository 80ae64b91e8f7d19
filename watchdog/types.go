package watchdog

import "chadboar/heartbeat-core/state"

// Urgency ranks how aggressively an exit should be pursued, driving the
// slippage escalation ladder in spec.md section 4.3.
type Urgency string

const (
	UrgencyNormal   Urgency = "NORMAL"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// ExitReason names why an exit was recommended.
type ExitReason string

const (
	ReasonTakeProfit1  ExitReason = "TAKE_PROFIT_1"
	ReasonTakeProfit2  ExitReason = "TAKE_PROFIT_2"
	ReasonStopLoss     ExitReason = "STOP_LOSS"
	ReasonTrailingStop ExitReason = "TRAILING_STOP"
	ReasonTimeDecay    ExitReason = "TIME_DECAY"
	ReasonLiquidityDrop ExitReason = "LIQUIDITY_DROP"
	ReasonPriceFetchFailed ExitReason = "PRICE_FETCH_FAILED"
)

// ExitKind distinguishes a partial sell from a full position close.
type ExitKind string

const (
	ExitPartial ExitKind = "PARTIAL"
	ExitFull    ExitKind = "FULL"
)

// PriceQuote is the minimal per-candidate market data the watchdog needs
// each cycle: current market cap and, for liquidity-drop detection, the
// current pool liquidity.
type PriceQuote struct {
	TokenMint        string
	CurrentMarketCapUSD float64
	CurrentLiquidityUSD float64
	Peak                float64 // running peak price/mcap proxy for trailing-stop tracking
	Available           bool    // false when the price fetch failed this cycle
}

// ExitDecision is the watchdog's per-position verdict for the current
// cycle. A nil decision (Fire == false) means no exit condition fired.
type ExitDecision struct {
	Position    state.Position
	Fire        bool
	Kind        ExitKind
	Reason      ExitReason
	Urgency     Urgency
	SellFrac    float64 // 1.0 for full exits
	PnLPct      float64
	AgeMin      float64
}

// SlippageSteps returns the basis-point escalation ladder applicable to an
// urgency tier: CRITICAL and HIGH escalate through the full ladder on
// repeated quote failure, NORMAL stays pinned to the first (lowest) step.
func SlippageSteps(urgency Urgency, ladder []int) []int {
	if len(ladder) == 0 {
		return nil
	}
	if urgency == UrgencyNormal {
		return ladder[:1]
	}
	return ladder
}
