// Package guards implements the pre-cycle guard cascade: a series of
// cheap, fast checks that run before any stage touches an oracle, the
// scorer, or the executor. Guards run in the fixed order spec.md section
// 4.1 specifies; killswitch and drawdown/risk halts short-circuit the
// rest of the cycle, while session-health and chain-verification guards
// only warn.
package guards

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"chadboar/heartbeat-core/beadchain"
	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/observability/metrics"
	"chadboar/heartbeat-core/state"
)

// Verdict is the outcome of running the guard cascade for one cycle.
type Verdict struct {
	Halted     bool
	HaltGuard  string
	HaltReason string
	Warnings   []cycleerrors.Error
}

// ZombieGatewayChecker reports whether the upstream execution gateway is
// reachable. A nil checker is treated as always-healthy.
type ZombieGatewayChecker func(ctx context.Context) error

// Dependencies carries the checks the cascade needs beyond RiskConfig and
// the current Portfolio snapshot. Any field may be left nil to skip that
// guard, which orchestrator tests rely on for scenario isolation.
type Dependencies struct {
	ZombieGateway  ZombieGatewayChecker
	VerifyChain    func(pub *ecdsa.PublicKey) (*beadchain.VerifyReport, error)
	AttesterPub    *ecdsa.PublicKey
	SessionHealthy func() error
}

// Run executes the guard cascade in order: killswitch, zombie-gateway,
// session-health (warn only), chain verification (warn only), drawdown,
// risk. The first HALT-tier guard to fire short-circuits the remainder.
func Run(ctx context.Context, cfg *config.RiskConfig, p *state.Portfolio, deps Dependencies) Verdict {
	v := Verdict{}

	if reason, halted := checkKillswitch(cfg.KillswitchPath); halted {
		metrics.Heartbeat().GuardHalt("killswitch")
		v.Halted = true
		v.HaltGuard = "killswitch"
		v.HaltReason = reason
		return v
	}

	if deps.ZombieGateway != nil {
		if err := deps.ZombieGateway(ctx); err != nil {
			metrics.Heartbeat().GuardHalt("zombie_gateway")
			v.Halted = true
			v.HaltGuard = "zombie_gateway"
			v.HaltReason = fmt.Sprintf("execution gateway unreachable: %v", err)
			return v
		}
	}

	if deps.SessionHealthy != nil {
		if err := deps.SessionHealthy(); err != nil {
			v.Warnings = append(v.Warnings, cycleerrors.New("guards", cycleerrors.GuardHalt, "session health degraded").WithCause(err).WithTier(cycleerrors.Warning))
		}
	}

	if deps.VerifyChain != nil && deps.AttesterPub != nil {
		report, err := deps.VerifyChain(deps.AttesterPub)
		if err != nil {
			v.Warnings = append(v.Warnings, cycleerrors.New("guards", cycleerrors.GuardHalt, "chain verification failed to run").WithCause(err).WithTier(cycleerrors.Warning))
		} else if report != nil && report.Result == beadchain.VerifyTampered {
			v.Warnings = append(v.Warnings, cycleerrors.New("guards", cycleerrors.ChainTampered,
				fmt.Sprintf("bead chain verification returned TAMPERED at bead %s", report.FirstBadBead)).WithTier(cycleerrors.Warning))
		}
	}

	if p.Halted {
		metrics.Heartbeat().GuardHalt("drawdown")
		v.Halted = true
		v.HaltGuard = "drawdown"
		v.HaltReason = p.HaltReason
		return v
	}
	if cfg.DrawdownHaltPct > 0 && p.DailyLossPct >= cfg.DrawdownHaltPct {
		metrics.Heartbeat().GuardHalt("drawdown")
		v.Halted = true
		v.HaltGuard = "drawdown"
		v.HaltReason = fmt.Sprintf("daily loss %.2f%% reached drawdown halt threshold %.2f%%", p.DailyLossPct, cfg.DrawdownHaltPct)
		return v
	}

	if cfg.ConsecutiveLossLimit > 0 && p.ConsecutiveLosses >= cfg.ConsecutiveLossLimit*2 {
		metrics.Heartbeat().GuardHalt("risk")
		v.Halted = true
		v.HaltGuard = "risk"
		v.HaltReason = fmt.Sprintf("consecutive losses %d far exceed configured limit %d", p.ConsecutiveLosses, cfg.ConsecutiveLossLimit)
		return v
	}

	return v
}

// checkKillswitch reports whether the operator-controlled killswitch
// file exists in the workspace root. Its mere presence halts the cycle
// immediately, regardless of content.
func checkKillswitch(path string) (reason string, halted bool) {
	if path == "" {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("killswitch file present at %s (modified %s)", path, info.ModTime().Format(time.RFC3339)), true
}
