package orchestrator

import (
	"context"
	"fmt"
	"time"

	"chadboar/heartbeat-core/beadchain"
	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/executor"
	"chadboar/heartbeat-core/observability/metrics"
	"chadboar/heartbeat-core/scorer"
	"chadboar/heartbeat-core/state"

	"github.com/google/uuid"
)

// scoreAndExecuteResult summarizes what Stage 4 did this cycle.
type scoreAndExecuteResult struct {
	CandidatesScored int
	AutoExecutions   int
}

// runScoreAndExecute is Stage 4: score every candidate assembled in
// Stage 2/3, write its SIGNAL bead, and act on the Decision Gate's
// recommendation — PROPOSAL_REJECTED for vetoed/discarded candidates,
// a gated PROPOSAL for anything needing INV-HUMAN-GATE-100 out-of-band
// approval, and an executed trade (re-reading state immediately before
// the mutating write) for AUTO_EXECUTE.
func runScoreAndExecute(ctx context.Context, sc *StageContext, deps Dependencies, candidates []candidateSignal) scoreAndExecuteResult {
	var res scoreAndExecuteResult
	if sc.ObserveOnly || len(candidates) == 0 {
		return res
	}

	for _, c := range candidates {
		if sc.budgetExceeded() {
			sc.addError(cycleerrors.New("scorer", cycleerrors.ScoringVeto, "cycle budget exhausted before all candidates scored").WithTier(cycleerrors.Warning))
			break
		}

		params := scorerParams(deps, sc)
		score := scorer.Score(c.input, params)
		res.CandidatesScored++
		metrics.Heartbeat().CandidateScored(string(score.PlayType))
		metrics.Heartbeat().Decision(string(score.Recommendation))

		signalBeadID := writeSignalBead(deps.BeadStore, c, score, sc.Now)

		switch score.Recommendation {
		case scorer.RecommendVeto, scorer.RecommendDiscard:
			writeRejectedBead(deps.BeadStore, c.mint, score, signalBeadID)

		case scorer.RecommendWatchlist, scorer.RecommendPaperTrade:
			writeProposalBead(deps.BeadStore, c.mint, score, signalBeadID, "OBSERVE")

		case scorer.RecommendAutoExecute:
			if scorer.NeedsHumanGate(score, deps.SolUSDPrice) && !approved(deps.ApprovalGate, c.mint) {
				if deps.ApprovalGate != nil {
					deps.ApprovalGate.Register(c.mint)
				}
				writeProposalBead(deps.BeadStore, c.mint, score, signalBeadID, "escalated")
				continue
			}
			if executeAutoTrade(ctx, sc, deps, c, score) {
				res.AutoExecutions++
				writeProposalBead(deps.BeadStore, c.mint, score, signalBeadID, "AUTO")
			}
		}
	}
	return res
}

// executeAutoTrade re-reads state immediately before mutating it (the
// mid-cycle-writer rule), submits the buy, and records the new position
// on success; a failed submission is reported but never silently
// retried into a second buy.
func executeAutoTrade(ctx context.Context, sc *StageContext, deps Dependencies, c candidateSignal, score scorer.ConvictionScore) bool {
	p, err := state.Load(deps.StatePath)
	if err != nil {
		sc.addError(cycleerrors.New("executor", cycleerrors.StateIOFailure, "re-read state before auto-execute failed").WithCause(err).WithTier(cycleerrors.Critical))
		return false
	}

	if p.DailyExposureSOL+score.PositionSizeSOL > sc.Config.MaxDailyExposureSOL {
		sc.addError(cycleerrors.New("executor", cycleerrors.ScoringVeto, "auto-execute skipped: daily exposure cap reached").WithTier(cycleerrors.Info))
		return false
	}

	result, err := deps.Executor.Execute(ctx, executor.Request{
		TokenMint:   c.mint,
		Side:        executor.SideBuy,
		AmountSOL:   score.PositionSizeSOL,
		SlippageBPS: 500,
	})
	if err != nil || result.Outcome != executor.OutcomeSuccess {
		sc.addError(cycleerrors.New("executor", cycleerrors.TransactionFailure, "auto-execute buy failed").WithCause(err).WithTier(cycleerrors.Critical))
		return false
	}

	p.Positions = append(p.Positions, state.Position{
		TokenMint:         c.mint,
		EntryAmountSOL:    score.PositionSizeSOL,
		EntryAmountToken:  result.AmountReceived,
		EntryMarketCapUSD: c.input.EntryMarketCapUSD,
		EntryTime:         sc.Now,
		EntryLiquidity:    c.input.EntryLiquidityUSD,
		PlayType:          state.PlayType(score.PlayType),
	})
	p.CurrentBalanceSOL -= score.PositionSizeSOL
	p.DailyExposureSOL += score.PositionSizeSOL
	if score.PlayType == scorer.PlayGraduation {
		p.DailyGraduationCount++
	}

	if err := state.Save(deps.StatePath, p); err != nil {
		sc.addError(cycleerrors.New("executor", cycleerrors.StateIOFailure, "save state after auto-execute failed").WithCause(err).WithTier(cycleerrors.Critical))
		return false
	}
	sc.StateSnapshot = p
	metrics.Heartbeat().SetBalance(p.CurrentBalanceSOL)
	metrics.Heartbeat().SetOpenPositions(p.OpenPositionCount())
	return true
}

func writeSignalBead(store *beadchain.Store, c candidateSignal, score scorer.ConvictionScore, now time.Time) string {
	if store == nil {
		return ""
	}
	lineage, isRoot := lineageOf(c.factBeadID)
	bead, err := store.Append(beadchain.Draft{
		BeadType:      beadchain.BeadSignal,
		TemporalClass: beadchain.TemporalDerived,
		SourceRef:     beadchain.SourceRef{SourceType: "scorer", SourceID: c.mint},
		Lineage:       lineage,
		Content: beadchain.SignalContent{
			TokenMint:       c.mint,
			PlayType:        string(score.PlayType),
			OrderingScore:   score.OrderingScore,
			PermissionScore: score.PermissionScore,
			Breakdown:       score.Breakdown,
			RedFlags:        score.RedFlags,
			PrimarySources:  score.PrimarySources,
		},
		TokenMint: c.mint,
		Stream:    c.mint,
	}, isRoot)
	if err != nil || bead == nil {
		return ""
	}
	metrics.Heartbeat().BeadWritten(string(beadchain.BeadSignal))
	return bead.BeadID.String()
}

func writeRejectedBead(store *beadchain.Store, mint string, score scorer.ConvictionScore, signalBeadID string) {
	if store == nil {
		return
	}
	category := "DISCARD"
	reason := score.Reasoning
	policyRef := ""
	if len(score.Vetoes) > 0 {
		category = "RISK_BREACH"
		reason = fmt.Sprintf("%s: %s", score.Vetoes[0].ID, score.Vetoes[0].Reason)
		policyRef = score.Vetoes[0].ID
	}
	lineage, isRoot := lineageOf(signalBeadID)
	bead, err := store.Append(beadchain.Draft{
		BeadType:      beadchain.BeadProposalRejected,
		TemporalClass: beadchain.TemporalDerived,
		SourceRef:     beadchain.SourceRef{SourceType: "decision_gate", SourceID: mint},
		Lineage:       lineage,
		Content: beadchain.ProposalRejectedContent{
			TokenMint:          mint,
			RejectionCategory:  category,
			RejectionReason:    reason,
			RejectionPolicyRef: policyRef,
			RejectionSource:    "decision_gate",
		},
		TokenMint: mint,
		Stream:    mint,
	}, isRoot)
	if err == nil && bead != nil {
		metrics.Heartbeat().BeadWritten(string(beadchain.BeadProposalRejected))
	}
}

func writeProposalBead(store *beadchain.Store, mint string, score scorer.ConvictionScore, signalBeadID, gate string) {
	if store == nil {
		return
	}
	lineage, isRoot := lineageOf(signalBeadID)
	bead, err := store.Append(beadchain.Draft{
		BeadType:      beadchain.BeadProposal,
		TemporalClass: beadchain.TemporalDerived,
		SourceRef:     beadchain.SourceRef{SourceType: "decision_gate", SourceID: mint},
		Lineage:       lineage,
		Content: beadchain.ProposalContent{
			TokenMint:       mint,
			PlayType:        string(score.PlayType),
			Recommendation:  string(score.Recommendation),
			PositionSizeSOL: score.PositionSizeSOL,
			Reasoning:       score.Reasoning,
			Gate:            gate,
		},
		TokenMint: mint,
		Stream:    mint,
	}, isRoot)
	if err == nil && bead != nil {
		metrics.Heartbeat().BeadWritten(string(beadchain.BeadProposal))
	}
}

// approved reports whether gate has already approved mint; a nil gate
// means no out-of-band approval channel is wired, so every human-gated
// candidate stays escalated indefinitely.
func approved(gate ApprovalGate, mint string) bool {
	return gate != nil && gate.IsApproved(mint)
}

// lineageOf parses a parent bead id string into a single-entry lineage
// slice, treating an empty id (the bead store was unavailable, or the
// parent write failed) as a root bead instead.
func lineageOf(id string) ([]uuid.UUID, bool) {
	if id == "" {
		return nil, true
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, true
	}
	return []uuid.UUID{parsed}, false
}
