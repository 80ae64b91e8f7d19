package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chadboar/heartbeat-core/beadchain"
	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/crypto"
	"chadboar/heartbeat-core/executor"
	"chadboar/heartbeat-core/guards"
	"chadboar/heartbeat-core/scorer"
	"chadboar/heartbeat-core/state"
	"chadboar/heartbeat-core/watchdog"
)

// Fakes mirroring executor's own test doubles (executor/executor_test.go);
// duplicated here rather than exported since orchestrator only needs the
// narrow QuoteEndpoint/Signer/RPCEndpoint surfaces, not executor's
// internals.

type fakeQuoter struct {
	outAmountTok float64
	outAmountSOL float64
}

func (f *fakeQuoter) Quote(ctx context.Context, req executor.Request) (executor.QuoteResponse, error) {
	return executor.QuoteResponse{InAmountSOL: req.AmountSOL, OutAmountSOL: f.outAmountSOL, OutAmountTok: f.outAmountTok}, nil
}

func (f *fakeQuoter) BuildUnsignedTx(ctx context.Context, q executor.QuoteResponse) (string, error) {
	return "dW5zaWduZWQ=", nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(ctx context.Context, unsignedTxBase64 string) (string, error) {
	return "c2lnbmVk", nil
}

type fakeRPC struct {
	slippageCalls []int
}

func (f *fakeRPC) Name() string { return "fake" }

func (f *fakeRPC) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	switch method {
	case "sendTransaction":
		v := out.(*struct {
			Signature string `json:"result"`
		})
		v.Signature = "sig-confirmed"
		return nil
	case "getSignatureStatuses":
		v := out.(*struct {
			Result struct {
				Value []*struct {
					ConfirmationStatus string      `json:"confirmationStatus"`
					Err                interface{} `json:"err"`
				} `json:"value"`
			} `json:"result"`
		})
		v.Result.Value = []*struct {
			ConfirmationStatus string      `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		}{{ConfirmationStatus: "confirmed"}}
		return nil
	}
	return nil
}

func newTestExecutor() (*executor.Executor, *fakeRPC) {
	rpc := &fakeRPC{}
	q := &fakeQuoter{outAmountTok: 1000, outAmountSOL: 1}
	return executor.New(q, fakeSigner{}, []executor.RPCEndpoint{rpc}), rpc
}

// escalatingQuoter and escalatingRPC share lastBPS so the fake RPC can
// simulate a route that only fills once the submission has escalated to
// the ladder's most aggressive slippage tolerance, exercising Stage 1b's
// per-retry escalation loop end to end.
type escalatingQuoter struct {
	calls   []int
	lastBPS *int
}

func (q *escalatingQuoter) Quote(ctx context.Context, req executor.Request) (executor.QuoteResponse, error) {
	q.calls = append(q.calls, req.SlippageBPS)
	*q.lastBPS = req.SlippageBPS
	return executor.QuoteResponse{InAmountSOL: req.AmountSOL, OutAmountSOL: 1, OutAmountTok: 1000}, nil
}

func (q *escalatingQuoter) BuildUnsignedTx(ctx context.Context, resp executor.QuoteResponse) (string, error) {
	return "dW5zaWduZWQ=", nil
}

type escalatingRPC struct {
	lastBPS   *int
	fillAtBPS int
}

func (r *escalatingRPC) Name() string { return "fake" }

func (r *escalatingRPC) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	switch method {
	case "sendTransaction":
		v := out.(*struct {
			Signature string `json:"result"`
		})
		v.Signature = "sig-escalating"
		return nil
	case "getSignatureStatuses":
		v := out.(*struct {
			Result struct {
				Value []*struct {
					ConfirmationStatus string      `json:"confirmationStatus"`
					Err                interface{} `json:"err"`
				} `json:"value"`
			} `json:"result"`
		})
		status := ""
		if *r.lastBPS >= r.fillAtBPS {
			status = "confirmed"
		}
		v.Result.Value = []*struct {
			ConfirmationStatus string      `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		}{{ConfirmationStatus: status}}
		return nil
	}
	return nil
}

func newTestStore(t *testing.T) *beadchain.Store {
	t.Helper()
	key, err := crypto.GenerateAttesterKey()
	if err != nil {
		t.Fatalf("generate attester key: %v", err)
	}
	store, err := beadchain.Open(filepath.Join(t.TempDir(), "beads.db"), key, "scenario-test")
	if err != nil {
		t.Fatalf("open bead store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestConfig(t *testing.T) *config.RiskConfig {
	t.Helper()
	return &config.RiskConfig{
		StartingBalanceSOL:  14,
		MaxDailyExposureSOL: 5,
		DrawdownHaltPct:      25,
		ConsecutiveLossLimit: 3,
		ExitTiers: []config.ExitTier{
			{MaxEntryMcapUSD: 100_000, TP1PnLPct: 80, TP1SellFrac: 0.4, TP2PnLPct: 200, TP2SellFrac: 0.4, TrailPct: 25, DecayWindow: 20 * time.Minute, StopLossPnLPct: -30},
			{MaxEntryMcapUSD: 0, TP1PnLPct: 30, TP1SellFrac: 0.5, TP2PnLPct: 60, TP2SellFrac: 0.3, TrailPct: 12, DecayWindow: 60 * time.Minute, StopLossPnLPct: -15},
		},
		PlayTypeLimits: config.PlayTypeLimits{
			MaxPositionUSDGraduation: 30,
			MaxMcapGraduationUSD:     500_000,
			MaxDailyGraduationPlays:  20,
		},
		Slippage:    config.SlippageLadder{StepsBPS: []int{500, 1500, 4900}},
		CycleBudget: 120 * time.Second,
	}
}

func newTestStatePath(t *testing.T, starting float64, now time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	if _, err := state.Init(path, starting, now); err != nil {
		t.Fatalf("init state: %v", err)
	}
	return path
}

// Scenario 1: a clean graduation play — a pulse-native candidate with no
// whale dumpers, a healthy organic ratio and no red flags scores high
// enough to auto-execute, and the resulting buy is recorded as a new
// position with the portfolio balance debited.
func TestCleanGraduationPlayAutoExecutes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	cfg := newTestConfig(t)
	statePath := newTestStatePath(t, 14, now)
	store := newTestStore(t)
	ex, _ := newTestExecutor()

	p, err := state.Load(statePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	sc := &StageContext{CycleNumber: 1, Now: now, RemainingBudget: cfg.CycleBudget, StateSnapshot: p, Config: cfg}
	deps := Dependencies{Executor: ex, BeadStore: store, StatePath: statePath, SolUSDPrice: 150}

	candidate := candidateSignal{
		mint: "MintGrad1",
		input: scorer.SignalInput{
			TokenMint:          "MintGrad1",
			FromPulse:          true,
			PulseStage:         "bonded",
			PulseOrganicRatio:  0.6,
			PulseProTraderPct:  15,
			PulseHasSocials:    true,
			WardenVerdict:      scorer.WardenPass,
			HoneypotDryRunSellOK: true,
			EntryMarketCapUSD:  90_000,
			TokenAgeSec:        600,
			VolumeSpikeMultiple: 4,
			OracleAvailable:    true,
			NarrativeAvailable: true,
			PulseAvailable:     true,
			VolatilityFactor:   1,
			// Timestamps deliberately more than 5 minutes apart: the
			// oracle snapshot is fresh, the narrative signal is from
			// slightly earlier in the cycle's candidate discovery pass.
			OracleTimestamp:    now,
			NarrativeTimestamp: now.Add(-10 * time.Minute),
		},
	}

	res := runScoreAndExecute(context.Background(), sc, deps, []candidateSignal{candidate})

	if res.CandidatesScored != 1 {
		t.Fatalf("expected 1 candidate scored, got %d", res.CandidatesScored)
	}
	if res.AutoExecutions != 1 {
		t.Fatalf("expected clean graduation play to auto-execute, got %d auto-executions (errors: %v)", res.AutoExecutions, sc.Errors)
	}
	if len(sc.StateSnapshot.Positions) != 1 || sc.StateSnapshot.Positions[0].TokenMint != "MintGrad1" {
		t.Fatalf("expected one open position for MintGrad1, got %+v", sc.StateSnapshot.Positions)
	}
	if sc.StateSnapshot.CurrentBalanceSOL >= 14 {
		t.Fatalf("expected balance debited by the buy, got %v", sc.StateSnapshot.CurrentBalanceSOL)
	}

	proposals, err := store.Query(beadchain.Filter{BeadType: beadchain.BeadProposal, TokenMint: "MintGrad1"})
	if err != nil || len(proposals) == 0 {
		t.Fatalf("expected a PROPOSAL bead for the auto-executed candidate: %v", err)
	}
}

// Scenario 2: a warden veto. A FAIL verdict from the rug-warden check
// vetoes the candidate outright regardless of how strong its other
// signals are, and the rejection is recorded as a PROPOSAL_REJECTED bead
// carrying the RISK_BREACH category.
func TestWardenVetoDiscardsCandidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	cfg := newTestConfig(t)
	statePath := newTestStatePath(t, 14, now)
	store := newTestStore(t)
	ex, _ := newTestExecutor()

	p, _ := state.Load(statePath)
	sc := &StageContext{CycleNumber: 1, Now: now, RemainingBudget: cfg.CycleBudget, StateSnapshot: p, Config: cfg}
	deps := Dependencies{Executor: ex, BeadStore: store, StatePath: statePath, SolUSDPrice: 150}

	candidate := candidateSignal{
		mint: "MintRug1",
		input: scorer.SignalInput{
			TokenMint:            "MintRug1",
			FromPulse:            true,
			PulseStage:           "bonded",
			PulseOrganicRatio:    0.9,
			PulseHasSocials:      true,
			WardenVerdict:        scorer.WardenFail,
			HoneypotDryRunSellOK: true,
			EntryMarketCapUSD:    90_000,
			TokenAgeSec:          600,
			OracleAvailable:      true,
			NarrativeAvailable:   true,
			PulseAvailable:       true,
			VolatilityFactor:     1,
			OracleTimestamp:      now,
			NarrativeTimestamp:   now.Add(-10 * time.Minute),
		},
	}

	res := runScoreAndExecute(context.Background(), sc, deps, []candidateSignal{candidate})

	if res.AutoExecutions != 0 {
		t.Fatalf("expected a warden FAIL to block execution, got %d auto-executions", res.AutoExecutions)
	}
	if len(sc.StateSnapshot.Positions) != 0 {
		t.Fatalf("expected no position opened for a vetoed candidate, got %+v", sc.StateSnapshot.Positions)
	}

	rejected, err := store.Query(beadchain.Filter{BeadType: beadchain.BeadProposalRejected, TokenMint: "MintRug1"})
	if err != nil || len(rejected) != 1 {
		t.Fatalf("expected exactly one PROPOSAL_REJECTED bead, got %d (err=%v)", len(rejected), err)
	}
	content, ok := rejected[0].Content.(beadchain.ProposalRejectedContent)
	if !ok {
		t.Fatalf("expected ProposalRejectedContent, got %T", rejected[0].Content)
	}
	if content.RejectionCategory != "RISK_BREACH" {
		t.Fatalf("expected RISK_BREACH rejection category, got %q", content.RejectionCategory)
	}
	if content.RejectionPolicyRef != "WARDEN_FAIL" {
		t.Fatalf("expected WARDEN_FAIL policy ref, got %q", content.RejectionPolicyRef)
	}
}

// Scenario 3: the FDV death zone. A graduation candidate entering with a
// market cap in the 25k-75k fragile band takes the fdv_death_zone red-flag
// penalty; even with otherwise clean signals this keeps permission below
// the auto-execute floor, so the candidate is held rather than traded.
func TestFDVDeathZoneHoldsRatherThanExecutes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	cfg := newTestConfig(t)
	statePath := newTestStatePath(t, 14, now)
	store := newTestStore(t)
	ex, _ := newTestExecutor()

	p, _ := state.Load(statePath)
	sc := &StageContext{CycleNumber: 1, Now: now, RemainingBudget: cfg.CycleBudget, StateSnapshot: p, Config: cfg}
	deps := Dependencies{Executor: ex, BeadStore: store, StatePath: statePath, SolUSDPrice: 150}

	candidate := candidateSignal{
		mint: "MintDeathZone1",
		input: scorer.SignalInput{
			TokenMint:            "MintDeathZone1",
			FromPulse:            true,
			PulseStage:           "bonding",
			PulseOrganicRatio:    0.55,
			WardenVerdict:        scorer.WardenPass,
			HoneypotDryRunSellOK: true,
			EntryMarketCapUSD:    50_000, // inside the 25k-75k death zone band
			TokenAgeSec:          600,
			VolumeSpikeMultiple:  4,
			OracleAvailable:      true,
			NarrativeAvailable:   true,
			PulseAvailable:       true,
			VolatilityFactor:     1,
			OracleTimestamp:      now,
			NarrativeTimestamp:   now.Add(-10 * time.Minute),
		},
	}

	res := runScoreAndExecute(context.Background(), sc, deps, []candidateSignal{candidate})

	if res.AutoExecutions != 0 {
		t.Fatalf("expected the FDV death zone penalty to prevent auto-execution, got %d", res.AutoExecutions)
	}
	if len(sc.StateSnapshot.Positions) != 0 {
		t.Fatalf("expected no position opened inside the FDV death zone, got %+v", sc.StateSnapshot.Positions)
	}
}

// Scenario 4: a stop-loss exit escalates through the configured slippage
// ladder as Stage 1b submits the closing sell, and the position is
// removed from state once the exit confirms.
func TestStopLossExitEscalatesSlippage(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	cfg := newTestConfig(t)
	statePath := newTestStatePath(t, 14, now)

	lastBPS := new(int)
	quoter := &escalatingQuoter{lastBPS: lastBPS}
	rpc := &escalatingRPC{lastBPS: lastBPS, fillAtBPS: cfg.Slippage.StepsBPS[len(cfg.Slippage.StepsBPS)-1]}
	ex := executor.New(quoter, fakeSigner{}, []executor.RPCEndpoint{rpc})

	p, _ := state.Load(statePath)
	p.Positions = append(p.Positions, state.Position{
		TokenMint:         "MintDrop1",
		EntryAmountSOL:    1,
		EntryAmountToken:  1000,
		EntryMarketCapUSD: 100_000,
		EntryTime:         now.Add(-30 * time.Minute),
		EntryLiquidity:    20_000,
	})
	if err := state.Save(statePath, p); err != nil {
		t.Fatalf("save seed state: %v", err)
	}

	sc := &StageContext{CycleNumber: 1, Now: now, RemainingBudget: cfg.CycleBudget, StateSnapshot: p, Config: cfg}
	deps := Dependencies{Executor: ex, StatePath: statePath}

	decision := watchdog.ExitDecision{
		Position: p.Positions[0],
		Fire:     true,
		Kind:     watchdog.ExitFull,
		Reason:   watchdog.ReasonStopLoss,
		Urgency:  watchdog.UrgencyCritical,
		SellFrac: 1.0,
		PnLPct:   -35,
	}

	// An already-expired context stands in for the real 4s confirmation
	// poll interval: an unfilled attempt's single status check returns
	// unconfirmed and the retry loop immediately moves to the next,
	// more aggressive slippage step instead of sleeping out the cycle
	// budget, exactly as a real submission would escalate on repeated
	// fill failure.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fired := runExitExecutor(ctx, sc, deps, []watchdog.ExitDecision{decision})

	if fired != 1 {
		t.Fatalf("expected 1 exit to fire, got %d (errors: %v)", fired, sc.Errors)
	}
	if len(sc.StateSnapshot.Positions) != 0 {
		t.Fatalf("expected the stopped-out position to be removed, got %+v", sc.StateSnapshot.Positions)
	}
	if len(quoter.calls) != len(cfg.Slippage.StepsBPS) {
		t.Fatalf("expected escalation through the full %d-step ladder, got %d quote attempts: %v", len(cfg.Slippage.StepsBPS), len(quoter.calls), quoter.calls)
	}
	for i, bps := range cfg.Slippage.StepsBPS {
		if quoter.calls[i] != bps {
			t.Fatalf("expected ladder step %d to request %d bps, got %d", i, bps, quoter.calls[i])
		}
	}
}

// Scenario 5: duplicate-mint exit. Two open positions share the same
// mint; firing one exit decision for that mint removes only the first
// matching entry, leaving the second untouched.
func TestDuplicateMintExitRemovesOnlyFirstEntry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	cfg := newTestConfig(t)
	statePath := newTestStatePath(t, 14, now)
	ex, _ := newTestExecutor()

	p, _ := state.Load(statePath)
	p.Positions = append(p.Positions,
		state.Position{TokenMint: "MintDup1", EntryAmountSOL: 1, EntryAmountToken: 1000, EntryMarketCapUSD: 50_000, EntryTime: now.Add(-60 * time.Minute), EntryLiquidity: 10_000},
		state.Position{TokenMint: "MintDup1", EntryAmountSOL: 2, EntryAmountToken: 2000, EntryMarketCapUSD: 60_000, EntryTime: now.Add(-30 * time.Minute), EntryLiquidity: 10_000},
	)
	if err := state.Save(statePath, p); err != nil {
		t.Fatalf("save seed state: %v", err)
	}

	sc := &StageContext{CycleNumber: 1, Now: now, RemainingBudget: cfg.CycleBudget, StateSnapshot: p, Config: cfg}
	deps := Dependencies{Executor: ex, StatePath: statePath}

	decision := watchdog.ExitDecision{
		Position: p.Positions[0],
		Fire:     true,
		Kind:     watchdog.ExitFull,
		Reason:   watchdog.ReasonTimeDecay,
		Urgency:  watchdog.UrgencyNormal,
		SellFrac: 1.0,
	}

	fired := runExitExecutor(context.Background(), sc, deps, []watchdog.ExitDecision{decision})

	if fired != 1 {
		t.Fatalf("expected 1 exit to fire, got %d (errors: %v)", fired, sc.Errors)
	}
	if len(sc.StateSnapshot.Positions) != 1 {
		t.Fatalf("expected exactly one remaining MintDup1 entry, got %d", len(sc.StateSnapshot.Positions))
	}
	if sc.StateSnapshot.Positions[0].EntryAmountSOL != 2 {
		t.Fatalf("expected the second (later) entry to survive, got %+v", sc.StateSnapshot.Positions[0])
	}
}

// Scenario 6: the killswitch. Its mere presence halts the cycle before
// any stage past the guard cascade runs, yet the cycle still finalizes
// and records a HEARTBEAT bead reflecting the halt.
func TestKillswitchHaltsCycleButEmitsHeartbeatBead(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	cfg := newTestConfig(t)
	killPath := filepath.Join(t.TempDir(), "KILLSWITCH")
	if err := os.WriteFile(killPath, []byte("manual halt"), 0o644); err != nil {
		t.Fatalf("write killswitch file: %v", err)
	}
	cfg.KillswitchPath = killPath

	statePath := newTestStatePath(t, 14, now)
	store := newTestStore(t)
	latestMD := filepath.Join(t.TempDir(), "latest.md")

	deps := Dependencies{
		BeadStore:    store,
		StatePath:    statePath,
		LatestMDPath: latestMD,
		Guards:       guards.Dependencies{},
	}

	result, err := RunHeartbeat(context.Background(), now, 1, cfg, deps)
	if err != nil {
		t.Fatalf("RunHeartbeat: %v", err)
	}
	if !result.Halted || result.HaltGuard != "killswitch" {
		t.Fatalf("expected a killswitch halt, got %+v", result)
	}

	beads, err := store.Query(beadchain.Filter{BeadType: beadchain.BeadHeartbeat})
	if err != nil || len(beads) != 1 {
		t.Fatalf("expected exactly one HEARTBEAT bead, got %d (err=%v)", len(beads), err)
	}
	content, ok := beads[0].Content.(beadchain.HeartbeatContent)
	if !ok || !content.Halted {
		t.Fatalf("expected the HEARTBEAT bead to record the halt, got %+v", beads[0].Content)
	}

	if _, err := os.Stat(latestMD); err != nil {
		t.Fatalf("expected latest.md to be written even on a halted cycle: %v", err)
	}
}
