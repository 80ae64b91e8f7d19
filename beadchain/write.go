package beadchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInvalidBead is returned by Append when a bead fails structural
// validation before it is ever hashed or persisted.
var ErrInvalidBead = errors.New("beadchain: invalid bead")

// Draft is the caller-supplied shape of a bead prior to the write protocol
// filling in knowledge time, hash_prev, hash_self and the attestation.
type Draft struct {
	BeadType      BeadType
	TemporalClass TemporalClass
	WorldTimeFrom *time.Time
	WorldTimeTo   *time.Time
	SourceRef     SourceRef
	Lineage       []uuid.UUID
	Content       Content
	TokenMint     string
	Tag           string
	Stream        string // chain stream key; beads in the same stream form one hash_prev chain
}

// Append validates the draft, assigns a time-ordered UUID v7 bead_id, fills
// in knowledge time, resolves hash_prev from the stream head, computes
// hash_self over the canonical JSON pre-image, signs it, and inserts the
// bead and its lineage edges in a single transaction. This realizes the
// write protocol of spec.md section 4.4.
func (s *Store) Append(draft Draft, isRoot bool) (*Bead, error) {
	if err := validateDraft(draft, isRoot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBead, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("beadchain: generate bead id: %w", err)
	}

	bead := &Bead{
		BeadID:        id,
		BeadType:      draft.BeadType,
		TemporalClass: draft.TemporalClass,
		WorldTimeFrom: draft.WorldTimeFrom,
		WorldTimeTo:   draft.WorldTimeTo,
		KnowledgeTime: s.nowFn().UTC(),
		SourceRef:     draft.SourceRef,
		Lineage:       draft.Lineage,
		Status:        StatusActive,
		Content:       draft.Content,
		ContentType:   string(draft.Content.Type()),
		TokenMint:     draft.TokenMint,
		Tag:           draft.Tag,
		Stream:        draft.Stream,
	}

	var row beadRow
	err = s.db.Transaction(func(tx *gorm.DB) error {
		prevHash, err := streamHead(tx, draft.Stream)
		if err != nil {
			return err
		}
		bead.HashPrev = prevHash

		preImage, err := CanonicalPreImage(bead)
		if err != nil {
			return err
		}
		digest := sha256.Sum256(preImage)
		bead.HashSelf = fmt.Sprintf("%x", digest[:])

		sig, err := s.attester.Sign(digest[:])
		if err != nil {
			return fmt.Errorf("sign bead: %w", err)
		}
		bead.Attestation = Attestation{
			AirNodeID: s.attester.NodeID(),
			CodeHash:  s.codeHash,
			ECDSASig:  fmt.Sprintf("%x", sig),
		}

		row, err = toRow(bead)
		if err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert bead: %w", err)
		}
		for i, parent := range bead.Lineage {
			edge := lineageRow{BeadID: bead.BeadID.String(), ParentID: parent.String(), Position: i}
			if err := tx.Create(&edge).Error; err != nil {
				return fmt.Errorf("insert lineage edge: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bead, nil
}

func streamHead(tx *gorm.DB, stream string) (string, error) {
	var head beadRow
	err := tx.Where("stream = ?", stream).Order("knowledge_time DESC, rowid DESC").Limit(1).Take(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve stream head: %w", err)
	}
	return head.HashSelf, nil
}

func validateDraft(d Draft, isRoot bool) error {
	if d.Stream == "" {
		return errors.New("stream is required")
	}
	if d.Content == nil {
		return errors.New("content is required")
	}
	switch d.TemporalClass {
	case TemporalObservation:
		if d.WorldTimeFrom == nil || d.WorldTimeTo == nil {
			return errors.New("OBSERVATION beads require both world-time bounds")
		}
		if d.WorldTimeFrom.After(*d.WorldTimeTo) {
			return errors.New("world_time_valid_from must be <= world_time_valid_to")
		}
	case TemporalPattern:
		if d.WorldTimeFrom != nil || d.WorldTimeTo != nil {
			return errors.New("PATTERN beads must not carry world-time bounds")
		}
	case TemporalDerived:
		// either bound shape is acceptable, per spec.md section 8.
	default:
		return fmt.Errorf("unknown temporal class %q", d.TemporalClass)
	}
	if !isRoot && len(d.Lineage) == 0 {
		return errors.New("lineage must be non-empty except for root FACTs")
	}
	if d.BeadType == BeadProposalRejected {
		rejected, ok := d.Content.(ProposalRejectedContent)
		if !ok {
			return errors.New("PROPOSAL_REJECTED content type mismatch")
		}
		if rejected.RejectionCategory == "" || rejected.RejectionReason == "" {
			return errors.New("PROPOSAL_REJECTED requires rejection_category and rejection_reason")
		}
		if rejected.RejectionCategory == "RISK_BREACH" && rejected.RejectionPolicyRef == "" {
			return errors.New("RISK_BREACH rejections require rejection_policy_ref")
		}
	}
	return nil
}

// CanonicalPreImage renders the bead as sorted-key, whitespace-free JSON,
// excluding hash_self, merkle_batch_id and hash_prev from the pre-image as
// spec.md section 4.4 requires. Go's encoding/json marshals map keys in
// sorted order, so building the pre-image as a map gives us canonical
// ordering without a third-party canonical-JSON library.
func CanonicalPreImage(b *Bead) ([]byte, error) {
	lineage := make([]string, len(b.Lineage))
	for i, id := range b.Lineage {
		lineage[i] = id.String()
	}
	m := map[string]any{
		"bead_id":                     b.BeadID.String(),
		"bead_type":                   b.BeadType,
		"temporal_class":              b.TemporalClass,
		"world_time_valid_from":       timeOrNil(b.WorldTimeFrom),
		"world_time_valid_to":         timeOrNil(b.WorldTimeTo),
		"knowledge_time_recorded_at":  b.KnowledgeTime.UTC().Format(time.RFC3339Nano),
		"source_ref":                  b.SourceRef,
		"lineage":                     lineage,
		"status":                      b.Status,
		"content_type":                b.ContentType,
		"content":                     b.Content,
		"token_mint":                  b.TokenMint,
		"tag":                         b.Tag,
		"stream":                      b.Stream,
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical pre-image: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, buf); err != nil {
		return nil, fmt.Errorf("compact canonical pre-image: %w", err)
	}
	return compact.Bytes(), nil
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// fromRow reconstructs a Bead from its persisted row, decoding its content
// by ContentType discriminator and looking up its lineage edges. Used by
// VerifyChain to recompute each bead's canonical pre-image.
func (s *Store) fromRow(row beadRow) (*Bead, error) {
	content, err := decodeContent(BeadType(row.ContentType), row.ContentJSON)
	if err != nil {
		return nil, err
	}
	var attestation Attestation
	if err := json.Unmarshal([]byte(row.AttestationJSON), &attestation); err != nil {
		return nil, fmt.Errorf("unmarshal attestation: %w", err)
	}

	var edges []lineageRow
	if err := s.db.Where("bead_id = ?", row.BeadID).Order("position ASC").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("load lineage for %s: %w", row.BeadID, err)
	}
	lineage := make([]uuid.UUID, len(edges))
	for i, e := range edges {
		lineage[i] = parseUUID(e.ParentID)
	}

	return &Bead{
		BeadID:        parseUUID(row.BeadID),
		BeadType:      BeadType(row.BeadType),
		TemporalClass: TemporalClass(row.TemporalClass),
		WorldTimeFrom: row.WorldTimeFrom,
		WorldTimeTo:   row.WorldTimeTo,
		KnowledgeTime: row.KnowledgeTime,
		SourceRef: SourceRef{
			SourceType:    row.SourceType,
			SourceID:      row.SourceID,
			SourceVersion: row.SourceVersion,
		},
		Lineage:       lineage,
		HashSelf:      row.HashSelf,
		HashPrev:      row.HashPrev,
		MerkleBatchID: row.MerkleBatchID,
		Attestation:   attestation,
		Status:        BeadStatus(row.Status),
		Content:       content,
		ContentType:   row.ContentType,
		TokenMint:     row.TokenMint,
		Tag:           row.Tag,
		Stream:        row.Stream,
	}, nil
}

// decodeContent unmarshals a bead's ContentJSON column into its concrete
// Content implementation, keyed by the ContentType discriminator set at
// write time (one struct per BeadType, see content.go).
func decodeContent(beadType BeadType, raw string) (Content, error) {
	var err error
	switch beadType {
	case BeadFact:
		var c FactContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadClaim:
		var c ClaimContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadSignal:
		var c SignalContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadProposal:
		var c ProposalContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadProposalRejected:
		var c ProposalRejectedContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadSkill:
		var c SkillContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadModelVersion:
		var c ModelVersionContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadPolicy:
		var c PolicyContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadAutopsy:
		var c AutopsyContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	case BeadHeartbeat:
		var c HeartbeatContent
		err = json.Unmarshal([]byte(raw), &c)
		return c, err
	default:
		return nil, fmt.Errorf("beadchain: unknown content type %q", beadType)
	}
}

func toRow(b *Bead) (beadRow, error) {
	contentJSON, err := json.Marshal(b.Content)
	if err != nil {
		return beadRow{}, fmt.Errorf("marshal content: %w", err)
	}
	attestationJSON, err := json.Marshal(b.Attestation)
	if err != nil {
		return beadRow{}, fmt.Errorf("marshal attestation: %w", err)
	}
	return beadRow{
		BeadID:          b.BeadID.String(),
		BeadType:        string(b.BeadType),
		TemporalClass:   string(b.TemporalClass),
		WorldTimeFrom:   b.WorldTimeFrom,
		WorldTimeTo:     b.WorldTimeTo,
		KnowledgeTime:   b.KnowledgeTime,
		SourceType:      b.SourceRef.SourceType,
		SourceID:        b.SourceRef.SourceID,
		SourceVersion:   b.SourceRef.SourceVersion,
		HashSelf:        b.HashSelf,
		HashPrev:        b.HashPrev,
		MerkleBatchID:   b.MerkleBatchID,
		AttestationJSON: string(attestationJSON),
		Status:          string(b.Status),
		ContentType:     b.ContentType,
		ContentJSON:     string(contentJSON),
		TokenMint:       b.TokenMint,
		Tag:             b.Tag,
		Stream:          b.Stream,
		CreatedAt:       b.KnowledgeTime,
	}, nil
}
