package beadchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportShadowFieldWritesOnlyRejectedBeads(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Append(Draft{
		BeadType:      BeadProposalRejected,
		TemporalClass: TemporalDerived,
		SourceRef:     SourceRef{SourceType: "decision_gate", SourceID: "MintA"},
		Content: ProposalRejectedContent{
			TokenMint:         "MintA",
			RejectionCategory: "DISCARD",
			RejectionReason:   "permission below floor",
		},
		TokenMint: "MintA",
		Stream:    "MintA",
	}, true)
	require.NoError(t, err, "append rejected bead")

	_, err = store.Append(Draft{
		BeadType:      BeadFact,
		TemporalClass: TemporalPattern,
		SourceRef:     SourceRef{SourceType: "oracle_fanout", SourceID: "MintA"},
		Content:       FactContent{Source: "datasource", Summary: "observation"},
		TokenMint:     "MintA",
		Stream:        "MintA",
	}, true)
	require.NoError(t, err, "append fact bead")

	out := filepath.Join(t.TempDir(), "shadow.parquet")
	n, err := store.ExportShadowField(out)
	require.NoError(t, err, "export shadow field")
	require.Equal(t, 1, n, "expected exactly 1 exported row")

	info, err := os.Stat(out)
	require.NoError(t, err, "stat export file")
	require.NotZero(t, info.Size(), "expected non-empty parquet export")
}
