package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadRisk loads the risk configuration from the given YAML path. If the file
// does not exist a default configuration is created and persisted, mirroring
// the teacher's config.Load bootstrap-on-first-run behaviour.
func LoadRisk(path string) (*RiskConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefaultRisk(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read risk config: %w", err)
	}
	cfg := &RiskConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse risk config: %w", err)
	}
	if err := ValidateRisk(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefaultRisk(path string) (*RiskConfig, error) {
	cfg := defaultRiskConfig()
	if err := writeYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		StartingBalanceSOL:   14,
		MaxDailyExposureSOL:  5,
		MaxDailyLossPct:      10,
		DrawdownHaltPct:      25,
		ConsecutiveLossLimit: 3,
		ExitTiers: []ExitTier{
			{MaxEntryMcapUSD: 100_000, TP1PnLPct: 80, TP1SellFrac: 0.40, TP2PnLPct: 200, TP2SellFrac: 0.40, TrailPct: 25, DecayWindow: 20 * time.Minute, StopLossPnLPct: -30},
			{MaxEntryMcapUSD: 500_000, TP1PnLPct: 60, TP1SellFrac: 0.50, TP2PnLPct: 150, TP2SellFrac: 0.30, TrailPct: 20, DecayWindow: 30 * time.Minute, StopLossPnLPct: -25},
			{MaxEntryMcapUSD: 2_000_000, TP1PnLPct: 40, TP1SellFrac: 0.50, TP2PnLPct: 100, TP2SellFrac: 0.30, TrailPct: 15, DecayWindow: 45 * time.Minute, StopLossPnLPct: -20},
			{MaxEntryMcapUSD: 0 /* unbounded, last row */, TP1PnLPct: 30, TP1SellFrac: 0.50, TP2PnLPct: 60, TP2SellFrac: 0.30, TrailPct: 12, DecayWindow: 60 * time.Minute, StopLossPnLPct: -15},
		},
		PlayTypeLimits: PlayTypeLimits{
			MaxPositionUSDGraduation: 30,
			MaxMcapGraduationUSD:     500_000,
			MaxDailyGraduationPlays:  20,
		},
		Slippage:         SlippageLadder{StepsBPS: []int{500, 1500, 4900}},
		CycleBudget:      120 * time.Second,
		PerCallTimeout:   10 * time.Second,
		HumanGateUSD:     100,
		KillswitchPath:   "./KILLSWITCH",
		StatePath:        "./data/portfolio_state.json",
		BeadDBPath:       "./data/beads.sqlite",
		LatestMDPath:     "./data/latest.md",
		SignerBinaryPath: "./bin/chadboar-signer",
		SignerKeyPath:    "./secrets/signer.key",
	}
}

func writeYAML(path string, v any) error {
	buf, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: encode default config: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create config file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// ValidateRisk enforces the invariants spec.md requires of the risk envelope:
// a strictly increasing market-cap ladder, well-formed slippage escalation, and a
// sane cycle budget.
func ValidateRisk(cfg *RiskConfig) error {
	if cfg.StartingBalanceSOL <= 0 {
		return fmt.Errorf("risk config: starting_balance_sol must be > 0")
	}
	if len(cfg.ExitTiers) == 0 {
		return fmt.Errorf("risk config: exit_tiers must not be empty")
	}
	last := -1.0
	for i, tier := range cfg.ExitTiers {
		if i < len(cfg.ExitTiers)-1 && tier.MaxEntryMcapUSD <= last {
			return fmt.Errorf("risk config: exit_tiers must be strictly increasing by max_entry_mcap_usd")
		}
		last = tier.MaxEntryMcapUSD
		if tier.TP1SellFrac <= 0 || tier.TP1SellFrac > 1 || tier.TP2SellFrac <= 0 || tier.TP2SellFrac > 1 {
			return fmt.Errorf("risk config: exit tier sell fractions must be in (0,1]")
		}
	}
	if len(cfg.Slippage.StepsBPS) == 0 {
		return fmt.Errorf("risk config: slippage_ladder.steps_bps must not be empty")
	}
	for i := 1; i < len(cfg.Slippage.StepsBPS); i++ {
		if cfg.Slippage.StepsBPS[i] <= cfg.Slippage.StepsBPS[i-1] {
			return fmt.Errorf("risk config: slippage_ladder.steps_bps must be strictly increasing")
		}
	}
	if cfg.CycleBudget <= 0 {
		return fmt.Errorf("risk config: cycle_budget must be > 0")
	}
	if cfg.PlayTypeLimits.MaxDailyGraduationPlays <= 0 {
		return fmt.Errorf("risk config: play_type_limits.max_daily_graduation_plays must be > 0")
	}
	return nil
}

// TierFor resolves the exit tier row applicable to an entry market cap. The
// last row in the table is treated as the unbounded catch-all.
func (c *RiskConfig) TierFor(entryMcapUSD float64) ExitTier {
	for i, tier := range c.ExitTiers {
		if i == len(c.ExitTiers)-1 {
			return tier
		}
		if entryMcapUSD < tier.MaxEntryMcapUSD {
			return tier
		}
	}
	return ExitTier{}
}
