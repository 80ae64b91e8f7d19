package orchestrator

import (
	"context"
	"crypto/ecdsa"

	"chadboar/heartbeat-core/beadchain"
	"chadboar/heartbeat-core/datasource"
	"chadboar/heartbeat-core/executor"
	"chadboar/heartbeat-core/guards"
	"chadboar/heartbeat-core/scorer"
)

// CandidateDiscovery returns the token mints to evaluate this cycle,
// e.g. a pulse-native bonding-curve feed or a watchlist. Returning an
// empty slice is a legitimate "nothing new this cycle" answer, not an
// error.
type CandidateDiscovery func(ctx context.Context) ([]string, error)

// ApprovalGate is the out-of-band human-gate channel INV-HUMAN-GATE-100
// requires for any AUTO_EXECUTE candidate sized above 100 USD (see
// scorer.NeedsHumanGate); satisfied by *approvals.Store.
type ApprovalGate interface {
	IsApproved(mint string) bool
	Register(mint string)
}

// Dependencies wires every collaborator RunHeartbeat needs beyond
// RiskConfig and the state snapshot.
type Dependencies struct {
	Sources      *datasource.Sources
	Executor     *executor.Executor
	BeadStore    *beadchain.Store
	AttesterPub  *ecdsa.PublicKey
	ApprovalGate ApprovalGate

	Guards             guards.Dependencies
	DiscoverCandidates CandidateDiscovery

	StatePath    string
	LatestMDPath string

	// ShadowFieldPath, when set, is re-exported to Parquet every time a
	// Merkle batch is sealed, per SPEC_FULL.md's shadow-field export.
	ShadowFieldPath string

	// SolUSDPrice converts SOL position sizes to USD for the human gate
	// and the USD-denominated graduation position cap.
	SolUSDPrice float64
}

// scorerParams builds scorer.Params from the current risk config and the
// cycle's in-memory portfolio snapshot, which Stage 1b and
// executeAutoTrade replace after each state write.
func scorerParams(deps Dependencies, sc *StageContext) scorer.Params {
	maxGradSOL := 0.0
	if deps.SolUSDPrice > 0 {
		maxGradSOL = sc.Config.PlayTypeLimits.MaxPositionUSDGraduation / deps.SolUSDPrice
	}
	return scorer.Params{
		PotSOL:                   sc.StateSnapshot.CurrentBalanceSOL,
		DailyGraduationCount:     sc.StateSnapshot.DailyGraduationCount,
		MaxDailyGraduationPlays:  sc.Config.PlayTypeLimits.MaxDailyGraduationPlays,
		MaxMcapGraduationUSD:     sc.Config.PlayTypeLimits.MaxMcapGraduationUSD,
		MaxPositionSOLGraduation: maxGradSOL,
		SolUSDPrice:              deps.SolUSDPrice,
	}
}
