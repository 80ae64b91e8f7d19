package beadchain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Batching thresholds from spec.md section 4.4: seal whenever a decision
// boundary is crossed, or 500 beads have accumulated unanchored, or an hour
// has passed since the last anchor, whichever comes first.
const (
	MaxUnanchoredBeads = 500
	MaxUnanchoredAge    = time.Hour
)

// PendingCount returns the number of beads not yet assigned to a sealed
// Merkle batch.
func (s *Store) PendingCount() (int64, error) {
	var count int64
	err := s.db.Model(&beadRow{}).Where("merkle_batch_id IS NULL").Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("beadchain: count pending beads: %w", err)
	}
	return count, nil
}

// lastAnchorAt returns the creation time of the most recently sealed batch,
// or the zero time if no batch has ever been sealed.
func (s *Store) lastAnchorAt() (time.Time, error) {
	var last merkleBatchRow
	err := s.db.Order("created_at DESC").Limit(1).Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("beadchain: resolve last anchor: %w", err)
	}
	return last.CreatedAt, nil
}

// ShouldSeal reports whether a Merkle batch should be sealed right now,
// and which trigger fired first. triggerBeadID, when non-nil, names the
// decision bead that crossed a DECISION_BOUNDARY trigger.
func (s *Store) ShouldSeal(triggerBeadID *uuid.UUID) (bool, TriggerType, error) {
	if triggerBeadID != nil {
		return true, TriggerDecisionBoundary, nil
	}
	pending, err := s.PendingCount()
	if err != nil {
		return false, "", err
	}
	if pending == 0 {
		return false, "", nil
	}
	if pending >= MaxUnanchoredBeads {
		return true, TriggerMaxBeads, nil
	}
	last, err := s.lastAnchorAt()
	if err != nil {
		return false, "", err
	}
	if last.IsZero() {
		return false, "", nil
	}
	if s.nowFn().Sub(last) >= MaxUnanchoredAge {
		return true, TriggerMaxTime, nil
	}
	return false, "", nil
}

// SealBatch builds a binary Merkle tree over the hash_self values of every
// unanchored bead (ordered by knowledge time, the order they were written),
// records the resulting root in a new merkle_batches row, and backfills
// merkle_batch_id onto each included bead. The tree construction is
// deterministic: odd layers duplicate their final node, matching the
// classic Merkle-batch scheme used by the teacher's reconciliation anchor
// commitments (services/otc-gateway/recon).
func (s *Store) SealBatch(trigger TriggerType, triggerBeadID *uuid.UUID) (*MerkleBatch, error) {
	var batch *MerkleBatch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rows []beadRow
		if err := tx.Where("merkle_batch_id IS NULL").Order("knowledge_time ASC, rowid ASC").Find(&rows).Error; err != nil {
			return fmt.Errorf("load pending beads: %w", err)
		}
		if len(rows) == 0 {
			return errors.New("beadchain: no pending beads to seal")
		}

		leaves := make([][]byte, len(rows))
		for i, r := range rows {
			digest, err := hex.DecodeString(r.HashSelf)
			if err != nil {
				return fmt.Errorf("decode hash_self for bead %s: %w", r.BeadID, err)
			}
			leaves[i] = digest
		}
		root := merkleRoot(leaves)

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate batch id: %w", err)
		}
		var triggerBeadStr *string
		if triggerBeadID != nil {
			s := triggerBeadID.String()
			triggerBeadStr = &s
		}
		row := merkleBatchRow{
			BatchID:       id.String(),
			MerkleRoot:    hex.EncodeToString(root),
			BeadCount:     len(rows),
			TriggerType:   string(trigger),
			TriggerBeadID: triggerBeadStr,
			CreatedAt:     s.nowFn().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert merkle batch: %w", err)
		}
		if err := tx.Model(&beadRow{}).Where("merkle_batch_id IS NULL").Update("merkle_batch_id", row.BatchID).Error; err != nil {
			return fmt.Errorf("backfill merkle_batch_id: %w", err)
		}

		batch = &MerkleBatch{
			BatchID:     id,
			MerkleRoot:  row.MerkleRoot,
			BeadCount:   row.BeadCount,
			TriggerType: trigger,
			TriggerBead: triggerBeadID,
			CreatedAt:   row.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// merkleRoot computes a binary Merkle root over leaf digests. A lone
// remaining node at any level is paired with itself, the common
// odd-node-duplication rule.
func merkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		digest := sha256.Sum256(nil)
		return digest[:]
	}
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			h := sha256.New()
			h.Write(left)
			h.Write(right)
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return level[0]
}

// RecordAnchor attaches an on-chain (or off-chain durable log) anchor
// transaction reference to an already-sealed batch.
func (s *Store) RecordAnchor(batchID uuid.UUID, anchorTx string) error {
	res := s.db.Model(&merkleBatchRow{}).Where("batch_id = ?", batchID.String()).Update("anchor_tx", anchorTx)
	if res.Error != nil {
		return fmt.Errorf("beadchain: record anchor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("beadchain: no such batch %s", batchID)
	}
	return nil
}
