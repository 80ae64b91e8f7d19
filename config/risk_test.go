package config

import (
	"path/filepath"
	"testing"
)

func TestLoadRiskCreatesDefaultOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.yaml")

	cfg, err := LoadRisk(path)
	if err != nil {
		t.Fatalf("LoadRisk: %v", err)
	}
	if cfg.StartingBalanceSOL <= 0 {
		t.Fatalf("expected default starting balance, got %v", cfg.StartingBalanceSOL)
	}

	reloaded, err := LoadRisk(path)
	if err != nil {
		t.Fatalf("LoadRisk (reload): %v", err)
	}
	if reloaded.StartingBalanceSOL != cfg.StartingBalanceSOL {
		t.Fatalf("reload mismatch: %v != %v", reloaded.StartingBalanceSOL, cfg.StartingBalanceSOL)
	}
}

func TestValidateRiskRejectsNonIncreasingTiers(t *testing.T) {
	cfg := defaultRiskConfig()
	cfg.ExitTiers[1].MaxEntryMcapUSD = cfg.ExitTiers[0].MaxEntryMcapUSD
	if err := ValidateRisk(cfg); err == nil {
		t.Fatalf("expected error for non-increasing exit tiers")
	}
}

func TestValidateRiskRejectsNonIncreasingSlippage(t *testing.T) {
	cfg := defaultRiskConfig()
	cfg.Slippage.StepsBPS = []int{500, 400, 4900}
	if err := ValidateRisk(cfg); err == nil {
		t.Fatalf("expected error for non-increasing slippage ladder")
	}
}

func TestTierForSelectsBand(t *testing.T) {
	cfg := defaultRiskConfig()
	tier := cfg.TierFor(80_000)
	if tier.MaxEntryMcapUSD != 100_000 {
		t.Fatalf("expected the <100k tier, got max=%v", tier.MaxEntryMcapUSD)
	}
	tier = cfg.TierFor(3_000_000)
	if tier.StopLossPnLPct != -15 {
		t.Fatalf("expected the unbounded tail tier, got %+v", tier)
	}
}
