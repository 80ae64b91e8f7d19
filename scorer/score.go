package scorer

import (
	"fmt"
	"time"
)

// Weight ceilings per play type (spec.md section 4.2).
var weightCeilings = map[PlayType]map[string]int{
	PlayGraduation: {
		"pulse_quality": 35,
		"smart_money":   0,
		"narrative":     30,
		"rug_warden":    25,
		"edge_bank":     10,
	},
	PlayAccumulation: {
		"pulse_quality": 0,
		"smart_money":   40,
		"narrative":     30,
		"rug_warden":    20,
		"edge_bank":     10,
	},
}

// fdvDeathZoneHighUSD is narrowed from spec's raw 100_000 upper bound to
// 75_000: a graduation entry at 100_000 is already close to the 500_000
// graduation mcap veto ceiling and isn't the "death zone" the penalty
// targets (an early entry too thin to survive graduation); 75_000 keeps
// the penalty aimed at genuinely fragile early entries.
const (
	fdvDeathZoneLowUSD  = 25_000
	fdvDeathZoneHighUSD = 75_000

	defaultMaxMcapGraduationUSD = 500_000
	defaultLiquidityDropFactor  = 0.4
)

// Params carries the cycle-scoped configuration and portfolio state needed
// to score a candidate; everything here is read-only per candidate.
type Params struct {
	PotSOL                  float64
	DailyGraduationCount    int
	MaxDailyGraduationPlays int
	MaxMcapGraduationUSD    float64 // 0 defaults to 500_000
	MaxPositionSOLGraduation float64
	SolUSDPrice             float64
	LiquidityDropFactor     float64 // 0 defaults to 0.4
}

func (p Params) maxMcapGraduation() float64 {
	if p.MaxMcapGraduationUSD > 0 {
		return p.MaxMcapGraduationUSD
	}
	return defaultMaxMcapGraduationUSD
}

func (p Params) liquidityDropFactor() float64 {
	if p.LiquidityDropFactor > 0 {
		return p.LiquidityDropFactor
	}
	return defaultLiquidityDropFactor
}

// DetectPlayType implements spec.md section 4.2's play-type detection:
// graduation if the candidate is pulse-sourced with no whale accumulation
// signal, accumulation otherwise.
func DetectPlayType(in SignalInput) PlayType {
	if in.FromPulse && in.WhaleCount == 0 {
		return PlayGraduation
	}
	return PlayAccumulation
}

// Score runs the full conviction-scoring pipeline: veto checks, weighted
// component scoring, red-flag penalties, the permission gate, partial-data
// and time-mismatch adjustments, decision tiering, and sizing.
func Score(in SignalInput, p Params) ConvictionScore {
	playType := DetectPlayType(in)
	ceilings := weightCeilings[playType]

	vetoes := checkVetoes(in, playType, p)

	// ordering_score always credits rug_warden at full ceiling: a WARN/FAIL
	// verdict is a permission-governing signal, not something that should
	// hide a candidate's raw conviction from the learning/ordering view.
	breakdown := map[string]int{
		"pulse_quality": scorePulseQuality(in, ceilings["pulse_quality"]),
		"smart_money":   scoreSmartMoney(in, ceilings["smart_money"]),
		"narrative":     scoreNarrative(in, ceilings["narrative"]),
		"rug_warden":    ceilings["rug_warden"],
		"edge_bank":     scoreEdgeBank(in, ceilings["edge_bank"]),
	}
	orderingScore := clampInt(sumValues(breakdown), 0, 100)

	permissionBreakdown := map[string]int{
		"pulse_quality": breakdown["pulse_quality"],
		"smart_money":   breakdown["smart_money"],
		"narrative":     breakdown["narrative"],
		"rug_warden":    scoreRugWarden(in, ceilings["rug_warden"]),
		"edge_bank":     breakdown["edge_bank"],
	}

	redFlags := scoreRedFlags(in, playType)
	permission := sumValues(permissionBreakdown)
	for _, penalty := range redFlags {
		permission += penalty // penalties are stored negative
	}
	permission = clampInt(permission, 0, 100)

	sources := primarySources(in)
	multiplier, forceObserveOnly := partialDataMultiplier(in)
	permission = clampInt(int(float64(permission)*multiplier), 0, 100)
	if len(vetoes) > 0 {
		permission = 0
	}

	recommendation := decideTier(len(vetoes) > 0, playType, permission, sources, forceObserveOnly)
	if timeMismatch(in) {
		recommendation = downgradeTier(recommendation)
	}

	size := sizePosition(permission, p, playType, in.VolatilityFactor)

	score := ConvictionScore{
		TokenMint:       in.TokenMint,
		PlayType:        playType,
		OrderingScore:   orderingScore,
		PermissionScore: permission,
		Breakdown:       breakdown,
		RedFlags:        redFlags,
		Vetoes:          vetoes,
		PrimarySources:  sources,
		Recommendation:  recommendation,
		PositionSizeSOL: size,
	}
	score.Reasoning = reasoningFor(score)
	return score
}

func sumValues(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func scorePulseQuality(in SignalInput, ceiling int) int {
	if ceiling == 0 || !in.FromPulse {
		return 0
	}
	points := 0
	switch in.PulseStage {
	case "bonded":
		points += 10
	case "bonding":
		points += 5
	}
	switch {
	case in.PulseOrganicRatio >= 0.5:
		points += 10
	case in.PulseOrganicRatio >= 0.3:
		points += 5
	}
	if in.PulseProTraderPct > 10 {
		points += 10
	}
	if in.PulseHasSocials {
		points += 5
	}
	return clampInt(points, 0, ceiling)
}

func scoreSmartMoney(in SignalInput, ceiling int) int {
	if ceiling == 0 {
		return 0
	}
	raw := int(float64(in.WhaleCount) * 15)
	if raw > 40 {
		raw = 40
	}
	return clampInt(raw, 0, ceiling)
}

func scoreNarrative(in SignalInput, ceiling int) int {
	if ceiling == 0 {
		return 0
	}
	spikePoints := (in.VolumeSpikeMultiple / 5) * 15
	if spikePoints > 25 {
		spikePoints = 25
	}
	raw := spikePoints
	if in.KOLFlag {
		raw += 10
	}
	if in.NarrativeAgeMin > 30 {
		raw -= in.NarrativeAgeMin - 30
	}
	return clampInt(int(raw), 0, ceiling)
}

func scoreRugWarden(in SignalInput, ceiling int) int {
	if ceiling == 0 {
		return 0
	}
	switch in.WardenVerdict {
	case WardenPass:
		return ceiling
	case WardenWarn:
		return ceiling / 2
	default:
		return 0
	}
}

func scoreEdgeBank(in SignalInput, ceiling int) int {
	if ceiling == 0 {
		return 0
	}
	pct := clampFloat(in.EdgeBankMatchPct, 0, 100)
	return clampInt(int((pct/100)*10), 0, ceiling)
}

// scoreRedFlags computes the permission-only penalty map of spec.md
// section 4.2. ordering_score never sees these.
func scoreRedFlags(in SignalInput, playType PlayType) map[string]int {
	flags := map[string]int{}

	if in.VolumeConcentrationGini >= 0.8 {
		flags["volume_concentration"] = -15
	}
	if !in.AllWhalesDumpers {
		switch {
		case in.DumperWalletCount >= 3:
			flags["dumper_wallets"] = -30
		case in.DumperWalletCount >= 1:
			flags["dumper_wallets"] = -15
		}
	}
	if in.FreshWalletInflowUSD > 50_000 {
		flags["fresh_wallet_inflow"] = -10
	}
	if in.ExchangeInflowUSD > 0 {
		flags["exchange_inflow"] = -10
	}
	if in.FromPulse {
		if in.PulseOrganicRatio < 0.3 {
			flags["pulse_organic_low"] = -10
		}
		if in.PulseBundlerPct > 20 {
			flags["pulse_bundlers"] = -10
		}
		if in.PulseSniperPct > 30 {
			flags["pulse_snipers"] = -10
		}
		if in.PulseStage == "bonded" && in.PulseOrganicRatio < 0.4 {
			flags["post_bonding_trap"] = -10
		}
	}
	if playType == PlayGraduation && in.EntryMarketCapUSD > fdvDeathZoneLowUSD && in.EntryMarketCapUSD < fdvDeathZoneHighUSD {
		flags["fdv_death_zone"] = -15
	}
	if in.WhaleCount >= 2 && in.VolumeSpikeMultiple < 2 && !in.KOLFlag {
		flags["s2_divergence"] = -25
	}
	return flags
}

// checkVetoes evaluates the nine absolute veto invariants (seven from
// spec.md section 4.2 plus the liquidity-drop and honeypot vetoes resolved
// in the Open Questions).
func checkVetoes(in SignalInput, playType PlayType, p Params) []Veto {
	var vetoes []Veto

	if in.WardenVerdict == WardenFail {
		vetoes = append(vetoes, Veto{ID: "WARDEN_FAIL", Reason: "rug warden verdict is FAIL"})
	}
	if in.TokenAgeSec < 120 && in.VolumeSpikeMultiple >= 5 {
		vetoes = append(vetoes, Veto{ID: "TOO_NEW_TOO_HOT", Reason: "token age < 120s with volume spike >= 5x"})
	}
	if in.PulseDeployerMigrations > 5 {
		vetoes = append(vetoes, Veto{ID: "DEPLOYER_MIGRATIONS", Reason: fmt.Sprintf("deployer migrated %d times", in.PulseDeployerMigrations)})
	}
	if playType == PlayGraduation && p.MaxDailyGraduationPlays > 0 && p.DailyGraduationCount >= p.MaxDailyGraduationPlays {
		vetoes = append(vetoes, Veto{ID: "DAILY_GRADUATION_CAP", Reason: "daily graduation play cap reached"})
	}
	if in.AllWhalesDumpers && in.WhaleCount > 0 {
		vetoes = append(vetoes, Veto{ID: "ALL_WHALES_DUMPERS", Reason: "every whale classified as a dumper"})
	}
	if playType == PlayGraduation && in.EntryMarketCapUSD > p.maxMcapGraduation() {
		vetoes = append(vetoes, Veto{ID: "MCAP_TOO_HIGH", Reason: "graduation entry market cap exceeds ceiling"})
	}
	if in.VolumeSpikeMultiple >= 10 && !in.KOLFlag && in.WhaleCount == 0 {
		vetoes = append(vetoes, Veto{ID: "WASH_TRADE_PATTERN", Reason: "spike >= 10x with no KOL and no whales"})
	}
	if in.PeakLiquidityUSD > 0 && in.EntryLiquidityUSD < in.PeakLiquidityUSD*p.liquidityDropFactor() {
		vetoes = append(vetoes, Veto{ID: "LIQUIDITY_DROP", Reason: "liquidity fell below the drop threshold vs peak"})
	}
	if !in.HoneypotDryRunSellOK {
		vetoes = append(vetoes, Veto{ID: "HONEYPOT", Reason: "dry-run sell simulation failed"})
	}
	return vetoes
}

// primarySources implements the permission gate's source classification.
func primarySources(in SignalInput) []string {
	var sources []string
	if in.WhaleCount >= 1 {
		sources = append(sources, "oracle")
	}
	if in.VolumeSpikeMultiple >= 3 {
		sources = append(sources, "narrative")
	}
	if in.WardenVerdict == WardenPass {
		sources = append(sources, "warden")
	}
	if in.PulseProTraderPct > 10 && in.PulseOrganicRatio >= 0.3 {
		sources = append(sources, "pulse")
	}
	return sources
}

// partialDataMultiplier implements the A2 partial-data penalty: missing
// oracle multiplies by 0.7, missing narrative by 0.8, missing pulse by 1.0
// (no-op), and two or more missing sources forces observe-only.
func partialDataMultiplier(in SignalInput) (float64, bool) {
	missing := 0
	multiplier := 1.0
	if !in.OracleAvailable {
		missing++
		multiplier *= 0.7
	}
	if !in.NarrativeAvailable {
		missing++
		multiplier *= 0.8
	}
	if !in.PulseAvailable {
		missing++
	}
	return multiplier, missing >= 2
}

// timeMismatch implements the B2 rule: if oracle and narrative timestamps
// both exist and fall within 5 minutes of each other, the recommendation
// is downgraded one tier.
func timeMismatch(in SignalInput) bool {
	if in.OracleTimestamp.IsZero() || in.NarrativeTimestamp.IsZero() {
		return false
	}
	diff := in.OracleTimestamp.Sub(in.NarrativeTimestamp)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 5*time.Minute
}

func decideTier(vetoed bool, playType PlayType, permission int, sources []string, forceObserveOnly bool) Recommendation {
	if vetoed {
		return RecommendVeto
	}
	switch {
	case permission < 25:
		return RecommendDiscard
	case permission < 40:
		return RecommendPaperTrade
	case permission < 50:
		return RecommendWatchlist
	}

	autoExecuteFloor := 50
	if playType == PlayAccumulation {
		autoExecuteFloor = 75
	}
	if permission < autoExecuteFloor {
		return RecommendWatchlist
	}

	requiredSources := 1
	if playType == PlayAccumulation {
		requiredSources = 2
	}
	if len(sources) < requiredSources || forceObserveOnly {
		return RecommendWatchlist
	}
	return RecommendAutoExecute
}

func downgradeTier(r Recommendation) Recommendation {
	switch r {
	case RecommendAutoExecute:
		return RecommendWatchlist
	case RecommendWatchlist:
		return RecommendPaperTrade
	case RecommendPaperTrade:
		return RecommendDiscard
	default:
		return r
	}
}

// sizePosition implements the sizing formula and the graduation cap; the
// human-gate escalation (INV-HUMAN-GATE-100) is applied by the caller once
// it has the resolved SOL/USD price, via NeedsHumanGate.
func sizePosition(permission int, p Params, playType PlayType, volatilityFactor float64) float64 {
	if volatilityFactor <= 0 {
		volatilityFactor = 1.0
	}
	byScore := (float64(permission) / 100) * (p.PotSOL * 0.01) * (1 / volatilityFactor)
	byPot := p.PotSOL * 0.05
	size := byScore
	if byPot < size {
		size = byPot
	}
	if playType == PlayGraduation && p.MaxPositionSOLGraduation > 0 && size > p.MaxPositionSOLGraduation {
		size = p.MaxPositionSOLGraduation
	}
	return size
}

// NeedsHumanGate implements INV-HUMAN-GATE-100: an AUTO_EXECUTE proposal
// whose USD-denominated size exceeds 100 requires out-of-band human
// approval before execution. An unknown (non-positive) SOL/USD price
// always requires approval.
func NeedsHumanGate(score ConvictionScore, solUSDPrice float64) bool {
	if score.Recommendation != RecommendAutoExecute {
		return false
	}
	if solUSDPrice <= 0 {
		return true
	}
	return score.PositionSizeSOL*solUSDPrice > 100
}

func reasoningFor(s ConvictionScore) string {
	if len(s.Vetoes) > 0 {
		return fmt.Sprintf("VETO: %s", s.Vetoes[0].Reason)
	}
	return fmt.Sprintf("%s candidate, ordering=%d permission=%d -> %s",
		s.PlayType, s.OrderingScore, s.PermissionScore, s.Recommendation)
}
