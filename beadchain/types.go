package beadchain

import (
	"time"

	"github.com/google/uuid"
)

// BeadType enumerates the bead variants defined in spec.md section 3.1.
type BeadType string

const (
	BeadFact               BeadType = "FACT"
	BeadClaim              BeadType = "CLAIM"
	BeadSignal             BeadType = "SIGNAL"
	BeadProposal           BeadType = "PROPOSAL"
	BeadProposalRejected   BeadType = "PROPOSAL_REJECTED"
	BeadSkill              BeadType = "SKILL"
	BeadModelVersion       BeadType = "MODEL_VERSION"
	BeadPolicy             BeadType = "POLICY"
	BeadAutopsy            BeadType = "AUTOPSY"
	BeadHeartbeat          BeadType = "HEARTBEAT"
)

// TemporalClass enumerates the bi-temporal classification rules of
// spec.md section 3.1 / section 8 ("Temporal class consistency").
type TemporalClass string

const (
	TemporalObservation TemporalClass = "OBSERVATION"
	TemporalPattern     TemporalClass = "PATTERN"
	TemporalDerived     TemporalClass = "DERIVED"
)

// BeadStatus enumerates the lifecycle status of a bead.
type BeadStatus string

const (
	StatusActive     BeadStatus = "ACTIVE"
	StatusSuperseded BeadStatus = "SUPERSEDED"
	StatusRetracted  BeadStatus = "RETRACTED"
)

// TriggerType enumerates why a Merkle batch was sealed (spec.md section 4.4).
type TriggerType string

const (
	TriggerDecisionBoundary TriggerType = "DECISION_BOUNDARY"
	TriggerMaxBeads         TriggerType = "MAX_BEADS"
	TriggerMaxTime          TriggerType = "MAX_TIME"
)

// SourceRef identifies the provenance of a bead's content.
type SourceRef struct {
	SourceType    string `json:"source_type"`
	SourceID      string `json:"source_id"`
	SourceVersion string `json:"source_version"`
}

// Attestation captures the cryptographic proof attached to a bead.
type Attestation struct {
	AirNodeID string `json:"air_node_id"`
	CodeHash  string `json:"code_hash"`
	ModelHash string `json:"model_hash,omitempty"`
	ECDSASig  string `json:"ecdsa_sig"`
	PQCSig    string `json:"pqc_sig,omitempty"`
}

// Bead is the in-memory representation of one row of the beads table,
// including its decoded Content and lineage. Fields tagged for JSON
// canonicalization match spec.md section 4.4's hash pre-image exactly:
// hash_self, merkle_batch_id and hash_prev are excluded from the pre-image
// (see CanonicalPreImage) but present on the stored struct.
type Bead struct {
	BeadID   uuid.UUID `json:"bead_id"`
	BeadType BeadType  `json:"bead_type"`

	TemporalClass    TemporalClass `json:"temporal_class"`
	WorldTimeFrom    *time.Time    `json:"world_time_valid_from"`
	WorldTimeTo      *time.Time    `json:"world_time_valid_to"`
	KnowledgeTime    time.Time     `json:"knowledge_time_recorded_at"`

	SourceRef SourceRef   `json:"source_ref"`
	Lineage   []uuid.UUID `json:"lineage"`

	HashSelf      string  `json:"hash_self"`
	HashPrev      string  `json:"hash_prev"`
	MerkleBatchID *string `json:"merkle_batch_id"`

	Attestation Attestation `json:"attestation"`
	Status      BeadStatus  `json:"status"`

	Content     Content `json:"content"`
	ContentType string  `json:"content_type"`

	TokenMint string `json:"token_mint,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Stream    string `json:"stream"`
}

// MerkleBatch is an immutable record of a sealed Merkle anchoring batch.
type MerkleBatch struct {
	BatchID      uuid.UUID   `json:"batch_id"`
	MerkleRoot   string      `json:"merkle_root"`
	BeadCount    int         `json:"bead_count"`
	TriggerType  TriggerType `json:"trigger_type"`
	TriggerBead  *uuid.UUID  `json:"trigger_bead_id"`
	AnchorTx     *string     `json:"anchor_tx"`
	CreatedAt    time.Time   `json:"created_at"`
}

// VerifyResult is the outcome of VerifyChain.
type VerifyResult string

const (
	VerifyClean      VerifyResult = "CLEAN"
	VerifyTampered   VerifyResult = "TAMPERED"
	VerifyUnanchored VerifyResult = "UNANCHORED"
)
