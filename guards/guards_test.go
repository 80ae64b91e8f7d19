package guards

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/state"
)

func TestRunHaltsOnKillswitchBeforeAnyOtherGuard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "KILLSWITCH")
	if err := os.WriteFile(path, []byte("halt"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.RiskConfig{KillswitchPath: path}
	p := &state.Portfolio{}

	called := false
	v := Run(context.Background(), cfg, p, Dependencies{
		ZombieGateway: func(ctx context.Context) error { called = true; return nil },
	})

	if !v.Halted || v.HaltGuard != "killswitch" {
		t.Fatalf("expected killswitch halt, got %+v", v)
	}
	if called {
		t.Fatal("expected zombie-gateway check to be skipped once killswitch fires")
	}
}

func TestRunHaltsOnZombieGateway(t *testing.T) {
	cfg := &config.RiskConfig{}
	p := &state.Portfolio{}
	v := Run(context.Background(), cfg, p, Dependencies{
		ZombieGateway: func(ctx context.Context) error { return errors.New("connection refused") },
	})
	if !v.Halted || v.HaltGuard != "zombie_gateway" {
		t.Fatalf("expected zombie_gateway halt, got %+v", v)
	}
}

func TestRunWarnsWithoutHaltingOnSessionHealth(t *testing.T) {
	cfg := &config.RiskConfig{}
	p := &state.Portfolio{}
	v := Run(context.Background(), cfg, p, Dependencies{
		SessionHealthy: func() error { return errors.New("session stale") },
	})
	if v.Halted {
		t.Fatal("session health must only warn, never halt")
	}
	if len(v.Warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(v.Warnings))
	}
}

func TestRunHaltsOnPortfolioAlreadyHalted(t *testing.T) {
	cfg := &config.RiskConfig{}
	p := &state.Portfolio{Halted: true, HaltReason: "daily loss limit exceeded"}
	v := Run(context.Background(), cfg, p, Dependencies{})
	if !v.Halted || v.HaltGuard != "drawdown" {
		t.Fatalf("expected drawdown halt, got %+v", v)
	}
}

func TestRunHaltsOnDrawdownThreshold(t *testing.T) {
	cfg := &config.RiskConfig{DrawdownHaltPct: 10}
	p := &state.Portfolio{DailyLossPct: 12}
	v := Run(context.Background(), cfg, p, Dependencies{})
	if !v.Halted || v.HaltGuard != "drawdown" {
		t.Fatalf("expected drawdown halt, got %+v", v)
	}
}

func TestRunPassesCleanWhenNothingFires(t *testing.T) {
	cfg := &config.RiskConfig{DrawdownHaltPct: 50, ConsecutiveLossLimit: 3}
	p := &state.Portfolio{DailyLossPct: 1, ConsecutiveLosses: 1}
	v := Run(context.Background(), cfg, p, Dependencies{})
	if v.Halted {
		t.Fatalf("expected no halt, got %+v", v)
	}
}
