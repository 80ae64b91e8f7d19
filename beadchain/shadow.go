package beadchain

import (
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// shadowRow is one PROPOSAL_REJECTED bead flattened for Parquet export,
// grounded on the teacher's recon.parquetRow shape.
type shadowRow struct {
	BeadID             string  `parquet:"name=bead_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenMint          string  `parquet:"name=token_mint, type=BYTE_ARRAY, convertedtype=UTF8"`
	RejectionCategory  string  `parquet:"name=rejection_category, type=BYTE_ARRAY, convertedtype=UTF8"`
	RejectionReason    string  `parquet:"name=rejection_reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	RejectionPolicyRef string  `parquet:"name=rejection_policy_ref, type=BYTE_ARRAY, convertedtype=UTF8"`
	RejectionSource    string  `parquet:"name=rejection_source, type=BYTE_ARRAY, convertedtype=UTF8"`
	KnowledgeTime      string  `parquet:"name=knowledge_time, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportShadowField writes every PROPOSAL_REJECTED bead to a Parquet file
// at path, recovered from original_source/'s discussion of the shadow
// field as fuel for future skill distillation: a standing record of
// every rejected proposal, independent of the bead chain itself, that a
// later training pass can mine without replaying the whole chain.
func (s *Store) ExportShadowField(path string) (int, error) {
	beads, err := s.Query(Filter{BeadType: BeadProposalRejected})
	if err != nil {
		return 0, fmt.Errorf("beadchain: query proposal_rejected beads: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("beadchain: create shadow export: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(shadowRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("beadchain: shadow export schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	for _, b := range beads {
		content, ok := b.Content.(ProposalRejectedContent)
		if !ok {
			continue
		}
		row := &shadowRow{
			BeadID:             b.BeadID.String(),
			TokenMint:          content.TokenMint,
			RejectionCategory:  content.RejectionCategory,
			RejectionReason:    content.RejectionReason,
			RejectionPolicyRef: content.RejectionPolicyRef,
			RejectionSource:    content.RejectionSource,
			KnowledgeTime:      b.KnowledgeTime.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return written, fmt.Errorf("beadchain: shadow export write: %w", err)
		}
		written++
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("beadchain: shadow export flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("beadchain: close shadow export: %w", err)
	}
	return written, nil
}
