package state

import "time"

// PlayType identifies how a candidate was sourced, per spec.md section 4.2.
type PlayType string

const (
	PlayGraduation  PlayType = "graduation"
	PlayAccumulation PlayType = "accumulation"
)

// Position is an open trade. Positions are a flat ordered sequence keyed by
// mint+entry_time with no cross-references; duplicate mints are distinct
// entries removed one at a time on exit (spec.md section 9).
type Position struct {
	TokenMint        string    `json:"token_mint"`
	TokenSymbol      string    `json:"token_symbol"`
	EntryAmountSOL   float64   `json:"entry_amount_sol"`
	EntryAmountToken float64   `json:"entry_amount_tokens"`
	EntryMarketCapUSD float64  `json:"entry_market_cap_usd"`
	EntryTime        time.Time `json:"entry_time"`
	EntryLiquidity   float64   `json:"entry_liquidity"`
	PeakPrice        float64   `json:"peak_price"`
	PlayType         PlayType  `json:"play_type"`
	Tier1Exited      bool      `json:"tier1_exited"`
	Tier2Exited      bool      `json:"tier2_exited"`
}

// Portfolio is the singleton, atomically-persisted trading state.
type Portfolio struct {
	StartingBalanceSOL float64 `json:"starting_balance_sol"`
	CurrentBalanceSOL  float64 `json:"current_balance_sol"`

	Positions []Position `json:"positions"`

	DailyExposureSOL    float64   `json:"daily_exposure_sol"`
	DailyDate           string    `json:"daily_date"` // YYYY-MM-DD, UTC
	DailyLossPct        float64   `json:"daily_loss_pct"`
	ConsecutiveLosses   int       `json:"consecutive_losses"`
	PaperConsecLosses   int       `json:"paper_consecutive_losses"`
	DailyGraduationCount int      `json:"daily_graduation_count"`

	TotalTrades int `json:"total_trades"`
	TotalWins   int `json:"total_wins"`
	TotalLosses int `json:"total_losses"`

	DryRunMode            bool `json:"dry_run_mode"`
	DryRunCyclesCompleted int  `json:"dry_run_cycles_completed"`
	DryRunTargetCycles    int  `json:"dry_run_target_cycles"`

	Halted           bool       `json:"halted"`
	HaltedAt         *time.Time `json:"halted_at,omitempty"`
	HaltReason       string     `json:"halt_reason,omitempty"`
	LastHeartbeatTime time.Time `json:"last_heartbeat_time"`
}

// RolloverDaily resets the daily counters when the wall-clock date (UTC)
// advances past the recorded DailyDate.
func (p *Portfolio) RolloverDaily(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if p.DailyDate == today {
		return
	}
	p.DailyDate = today
	p.DailyExposureSOL = 0
	p.DailyLossPct = 0
	p.ConsecutiveLosses = 0
	p.PaperConsecLosses = 0
	p.DailyGraduationCount = 0
}

// OpenPositionCount returns the number of currently-open positions.
func (p *Portfolio) OpenPositionCount() int {
	return len(p.Positions)
}

// PositionsForMint returns the indices of every position entry matching mint,
// in stored order, for duplicate-mint handling during exits.
func (p *Portfolio) PositionsForMint(mint string) []int {
	idx := make([]int, 0, 1)
	for i, pos := range p.Positions {
		if pos.TokenMint == mint {
			idx = append(idx, i)
		}
	}
	return idx
}

// RemoveFirstPosition removes only the first position entry matching mint,
// per the duplicate-entry invariant in spec.md section 4.3.
func (p *Portfolio) RemoveFirstPosition(mint string) (Position, bool) {
	for i, pos := range p.Positions {
		if pos.TokenMint == mint {
			removed := pos
			p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
			return removed, true
		}
	}
	return Position{}, false
}
