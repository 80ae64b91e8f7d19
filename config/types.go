package config

import "time"

// ExitTier describes one row of the market-cap anchored exit table described
// in spec.md section 4.3. Percentages are expressed in whole points (80 means
// +80%), sell fractions in [0,1].
type ExitTier struct {
	MaxEntryMcapUSD float64       `yaml:"max_entry_mcap_usd"`
	TP1PnLPct       float64       `yaml:"tp1_pnl_pct"`
	TP1SellFrac     float64       `yaml:"tp1_sell_frac"`
	TP2PnLPct       float64       `yaml:"tp2_pnl_pct"`
	TP2SellFrac     float64       `yaml:"tp2_sell_frac"`
	TrailPct        float64       `yaml:"trail_pct"`
	DecayWindow     time.Duration `yaml:"decay_window"`
	StopLossPnLPct  float64       `yaml:"stop_loss_pnl_pct"`
}

// SlippageLadder is the escalating-slippage-on-retry sequence, expressed in
// basis points, used for CRITICAL and HIGH urgency exits.
type SlippageLadder struct {
	StepsBPS []int `yaml:"steps_bps"`
}

// PlayTypeLimits bounds position sizing and daily counts per play type.
type PlayTypeLimits struct {
	MaxPositionUSDGraduation float64 `yaml:"max_position_usd_graduation"`
	MaxMcapGraduationUSD     float64 `yaml:"max_mcap_graduation_usd"`
	MaxDailyGraduationPlays  int     `yaml:"max_daily_graduation_plays"`
}

// RiskConfig is the YAML-loaded risk envelope: starting balance, drawdown
// thresholds, exposure caps, the exit tier table, play-type limits, the
// slippage escalation ladder and the cycle time budget.
type RiskConfig struct {
	StartingBalanceSOL   float64        `yaml:"starting_balance_sol"`
	MaxDailyExposureSOL  float64        `yaml:"max_daily_exposure_sol"`
	MaxDailyLossPct      float64        `yaml:"max_daily_loss_pct"`
	DrawdownHaltPct      float64        `yaml:"drawdown_halt_pct"`
	ConsecutiveLossLimit int            `yaml:"consecutive_loss_limit"`
	ExitTiers            []ExitTier     `yaml:"exit_tiers"`
	PlayTypeLimits       PlayTypeLimits `yaml:"play_type_limits"`
	Slippage             SlippageLadder `yaml:"slippage_ladder"`
	CycleBudget          time.Duration  `yaml:"cycle_budget"`
	PerCallTimeout       time.Duration  `yaml:"per_call_timeout"`
	HumanGateUSD         float64        `yaml:"human_gate_usd"`
	KillswitchPath       string         `yaml:"killswitch_path"`
	StatePath            string         `yaml:"state_path"`
	BeadDBPath           string         `yaml:"bead_db_path"`
	LatestMDPath         string         `yaml:"latest_md_path"`
	SignerBinaryPath     string         `yaml:"signer_binary_path"`
	SignerKeyPath        string         `yaml:"signer_key_path"`
}

// ProviderLimit is a per-provider token-bucket limit: requests per second and
// burst size, mirroring gateway/middleware.RateLimit in the teacher repo.
type ProviderLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// RetryPolicy bounds the exponential backoff applied to transient adapter
// errors only; non-transient errors fail closed without retry.
type RetryPolicy struct {
	MaxElapsed     time.Duration `yaml:"max_elapsed"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// SourceEndpoint describes one external data-source adapter's wiring.
type SourceEndpoint struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key_env"`
	Limit   ProviderLimit `yaml:"rate_limit"`
	Retry   RetryPolicy   `yaml:"retry"`
	Timeout time.Duration `yaml:"timeout"`
}

// DataSourceConfig is the YAML-loaded configuration for every external
// collaborator the orchestrator fans out to: whale-flow, price, volume,
// pulse (graduation stage), warden and the Jupiter-like swap quoter, plus
// the Solana RPC fallback chain used for submission/confirmation polling.
type DataSourceConfig struct {
	WhaleFlow   SourceEndpoint   `yaml:"whale_flow"`
	Price       SourceEndpoint   `yaml:"price"`
	Volume      SourceEndpoint   `yaml:"volume"`
	Pulse       SourceEndpoint   `yaml:"pulse"`
	Warden      SourceEndpoint   `yaml:"warden"`
	Quoter      SourceEndpoint   `yaml:"quoter"`
	RPCChain    []SourceEndpoint `yaml:"rpc_chain"`
	TelegramURL string           `yaml:"telegram_url"`
}
