package beadchain

// Content is implemented by exactly one struct per BeadType, realizing the
// "polymorphism over bead content" design note in spec.md section 9 as a
// tagged union rather than runtime duck-typing. Write-time validation
// (validateDraft in write.go) is the sole place structural rules about bead
// type are enforced.
type Content interface {
	isBeadContent()
	Type() BeadType
}

// FactContent is a per-source FACT summary: one per source per cycle.
type FactContent struct {
	Source  string         `json:"source"`
	Summary string         `json:"summary"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (FactContent) isBeadContent()   {}
func (FactContent) Type() BeadType   { return BeadFact }

// ClaimContent captures a derived assertion about a token or pattern.
type ClaimContent struct {
	Claim      string  `json:"claim"`
	Confidence float64 `json:"confidence"`
}

func (ClaimContent) isBeadContent() {}
func (ClaimContent) Type() BeadType { return BeadClaim }

// SignalContent records a scored candidate signal (any conviction > 0).
type SignalContent struct {
	TokenMint        string         `json:"token_mint"`
	PlayType         string         `json:"play_type"`
	OrderingScore    int            `json:"ordering_score"`
	PermissionScore  int            `json:"permission_score"`
	Breakdown        map[string]int `json:"breakdown"`
	RedFlags         map[string]int `json:"red_flags"`
	PrimarySources   []string       `json:"primary_sources"`
}

func (SignalContent) isBeadContent() {}
func (SignalContent) Type() BeadType { return BeadSignal }

// ProposalContent records an AUTO_EXECUTE, WATCHLIST or PAPER_TRADE
// proposal: executed, awaiting human approval, or observed only.
type ProposalContent struct {
	TokenMint      string  `json:"token_mint"`
	PlayType       string  `json:"play_type"`
	Recommendation string  `json:"recommendation"`
	PositionSizeSOL float64 `json:"position_size_sol"`
	Reasoning      string  `json:"reasoning"`
	Gate           string  `json:"gate,omitempty"` // "AUTO", "OBSERVE", or "escalated" for INV-HUMAN-GATE-100
}

func (ProposalContent) isBeadContent() {}
func (ProposalContent) Type() BeadType { return BeadProposal }

// ProposalRejectedContent is emitted for every VETO or DISCARD
// recommendation. A failed AUTO_EXECUTE submission is recorded only as a
// cycle error and writes no PROPOSAL_REJECTED bead.
// RejectionCategory/RejectionReason are required by spec.md
// section 8's testable invariant 6; RejectionPolicyRef is required
// additionally when RejectionCategory is RISK_BREACH.
type ProposalRejectedContent struct {
	TokenMint           string `json:"token_mint"`
	RejectionCategory   string `json:"rejection_category"`
	RejectionReason     string `json:"rejection_reason"`
	RejectionPolicyRef  string `json:"rejection_policy_ref,omitempty"`
	RejectionSource     string `json:"rejection_source,omitempty"` // "decision_gate" (the only value Stage 4 writes)
}

func (ProposalRejectedContent) isBeadContent() {}
func (ProposalRejectedContent) Type() BeadType { return BeadProposalRejected }

// SkillContent records a distilled behavior learned from the shadow field.
type SkillContent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (SkillContent) isBeadContent() {}
func (SkillContent) Type() BeadType { return BeadSkill }

// ModelVersionContent is beaded on startup or model swap.
type ModelVersionContent struct {
	ModelID string `json:"model_id"`
	Version string `json:"version"`
}

func (ModelVersionContent) isBeadContent() {}
func (ModelVersionContent) Type() BeadType { return BeadModelVersion }

// PolicyContent is beaded on config change or startup.
type PolicyContent struct {
	PolicyHash string         `json:"policy_hash"`
	Summary    map[string]any `json:"summary,omitempty"`
}

func (PolicyContent) isBeadContent() {}
func (PolicyContent) Type() BeadType { return BeadPolicy }

// AutopsyContent is beaded once per closed trade.
type AutopsyContent struct {
	TokenMint    string  `json:"token_mint"`
	EntryMcapUSD float64 `json:"entry_mcap_usd"`
	ExitMcapUSD  float64 `json:"exit_mcap_usd"`
	PnLPct       float64 `json:"pnl_pct"`
	ExitTier     string  `json:"exit_tier"`
	Win          bool    `json:"win"`
}

func (AutopsyContent) isBeadContent() {}
func (AutopsyContent) Type() BeadType { return BeadAutopsy }

// HeartbeatContent is beaded once per cycle, lineage-linked to the prior one.
type HeartbeatContent struct {
	CycleNumber   int     `json:"cycle_number"`
	ObserveOnly   bool    `json:"observe_only"`
	Halted        bool    `json:"halted"`
	HaltReason    string  `json:"halt_reason,omitempty"`
	BalanceSOL    float64 `json:"balance_sol"`
	OpenPositions int     `json:"open_positions"`
}

func (HeartbeatContent) isBeadContent() {}
func (HeartbeatContent) Type() BeadType { return BeadHeartbeat }
