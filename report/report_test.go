package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/state"
)

func TestRenderNeverContainsForbiddenTokens(t *testing.T) {
	s := Summary{
		CycleNumber: 1,
		Portfolio:   &state.Portfolio{CurrentBalanceSOL: 12.5},
		Errors: []cycleerrors.Error{
			cycleerrors.New("test", cycleerrors.TransactionFailure, "NO_REPLY from upstream, saw HEARTBEAT_OK unexpectedly").WithTier(cycleerrors.Critical),
		},
		Now: time.Unix(0, 0),
	}
	out := Render(s)
	for _, forbidden := range []string{"NO_REPLY", "HEARTBEAT_OK"} {
		if strings.Contains(out, forbidden) {
			t.Fatalf("report must never contain %q, got: %s", forbidden, out)
		}
	}
}

func TestRenderFirstLineFormat(t *testing.T) {
	s := Summary{
		CycleNumber: 42,
		Portfolio:   &state.Portfolio{CurrentBalanceSOL: 9.75, Positions: []state.Position{{TokenMint: "a"}, {TokenMint: "b"}}},
		Now:         time.Unix(0, 0),
	}
	out := Render(s)
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[0], "🐗 HB #42 | 9.75 SOL | 2 pos |") || !strings.HasSuffix(lines[0], "| OINK") {
		t.Fatalf("unexpected first line format: %q", lines[0])
	}
}

func TestRenderHaltedSummary(t *testing.T) {
	s := Summary{
		CycleNumber: 2,
		Portfolio:   &state.Portfolio{},
		Halted:      true,
		HaltGuard:   "killswitch",
		HaltReason:  "killswitch file present",
		Now:         time.Unix(0, 0),
	}
	out := Render(s)
	if !strings.Contains(out, "HALTED (killswitch: killswitch file present)") {
		t.Fatalf("expected halted summary, got: %s", out)
	}
}

func TestWriteLatestMDWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.md")
	s := Summary{CycleNumber: 1, Portfolio: &state.Portfolio{}, Now: time.Unix(0, 0)}

	if err := WriteLatestMD(path, s); err != nil {
		t.Fatalf("write latest.md: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read latest.md: %v", err)
	}
	if !strings.Contains(string(data), "OINK") {
		t.Fatalf("expected rendered report in latest.md, got: %s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be renamed away")
	}
}
