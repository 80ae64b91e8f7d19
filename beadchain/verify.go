package beadchain

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"chadboar/heartbeat-core/crypto"
)

// VerifyReport describes the outcome of a full chain walk.
type VerifyReport struct {
	Result        VerifyResult
	BeadsChecked  int
	FirstBadBead  string // bead_id of the first hash/signature mismatch, if any
	UnanchoredAge int    // count of beads with no merkle_batch_id
}

// VerifyChain walks every stream from its root forward, recomputing
// hash_self over each bead's canonical pre-image, confirming hash_prev
// chains to the previous bead's hash_self, and verifying the ECDSA
// attestation against the given public key. It returns TAMPERED on the
// first mismatch, UNANCHORED if the chain is internally consistent but has
// pending (unsealed) beads, and CLEAN otherwise.
func (s *Store) VerifyChain(pub *ecdsa.PublicKey) (*VerifyReport, error) {
	streams, err := s.streamNames()
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{Result: VerifyClean}
	for _, stream := range streams {
		var rows []beadRow
		if err := s.db.Where("stream = ?", stream).Order("knowledge_time ASC, rowid ASC").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("beadchain: load stream %q: %w", stream, err)
		}

		prevHash := ""
		for _, row := range rows {
			report.BeadsChecked++
			if row.HashPrev != prevHash {
				report.Result = VerifyTampered
				report.FirstBadBead = row.BeadID
				return report, nil
			}

			bead, err := s.fromRow(row)
			if err != nil {
				return nil, fmt.Errorf("beadchain: decode bead %s: %w", row.BeadID, err)
			}
			preImage, err := CanonicalPreImage(bead)
			if err != nil {
				return nil, fmt.Errorf("beadchain: recompute pre-image for %s: %w", row.BeadID, err)
			}
			wantHash := sha256Hex(preImage)
			if wantHash != row.HashSelf {
				report.Result = VerifyTampered
				report.FirstBadBead = row.BeadID
				return report, nil
			}

			sig, err := hex.DecodeString(bead.Attestation.ECDSASig)
			if err != nil {
				report.Result = VerifyTampered
				report.FirstBadBead = row.BeadID
				return report, nil
			}
			digest, err := hex.DecodeString(row.HashSelf)
			if err != nil {
				return nil, fmt.Errorf("beadchain: decode hash_self for %s: %w", row.BeadID, err)
			}
			if ok := crypto.VerifyWithPublicKey(pub, digest, sig); !ok {
				report.Result = VerifyTampered
				report.FirstBadBead = row.BeadID
				return report, nil
			}

			if row.MerkleBatchID == nil {
				report.UnanchoredAge++
			}
			prevHash = row.HashSelf
		}
	}

	if report.UnanchoredAge > 0 {
		report.Result = VerifyUnanchored
	}
	return report, nil
}

func (s *Store) streamNames() ([]string, error) {
	var streams []string
	err := s.db.Model(&beadRow{}).Distinct().Pluck("stream", &streams).Error
	if err != nil {
		return nil, fmt.Errorf("beadchain: list streams: %w", err)
	}
	return streams, nil
}

func sha256Hex(b []byte) string {
	digest := sha256.Sum256(b)
	return fmt.Sprintf("%x", digest[:])
}
