// Package report renders the deterministic two-line cycle report and
// regenerates latest.md after every heartbeat cycle. The orchestrator
// is the only caller; this package has no knowledge of scoring or
// execution, only of the summary values needed to describe a finished
// cycle.
package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/state"
)

// forbiddenTokens must never appear in an emitted report: both strings
// are reserved protocol markers elsewhere in the system and a report
// containing either would be misread as a control signal instead of
// a status line.
var forbiddenTokens = []string{"NO_REPLY", "HEARTBEAT_OK"}

// tierPrefix maps a cycleerrors.Tier onto the report's visual prefix.
func tierPrefix(t cycleerrors.Tier) string {
	switch t {
	case cycleerrors.Critical:
		return "🔴 CRITICAL"
	case cycleerrors.Warning:
		return "🟡 WARNING"
	case cycleerrors.Info:
		return "🟢 INFO"
	default:
		return "📊 DIGEST"
	}
}

// Summary is everything Render needs to describe one finished cycle.
type Summary struct {
	CycleNumber  int
	Portfolio    *state.Portfolio
	Halted       bool
	HaltGuard    string
	HaltReason   string
	ObserveOnly  bool
	ExitsFired   int
	AutoExecutions int
	Errors       []cycleerrors.Error
	Now          time.Time
}

// Render builds the plain-text cycle report: a first line matching
// spec.md section 6's "🐗 HB #n | pot SOL | positions pos | summary |
// OINK" format, and a second diagnostic line summarizing health.
func Render(s Summary) string {
	pot := 0.0
	positions := 0
	if s.Portfolio != nil {
		pot = s.Portfolio.CurrentBalanceSOL
		positions = s.Portfolio.OpenPositionCount()
	}

	summary := cycleSummary(s)
	first := fmt.Sprintf("🐗 HB #%d | %.2f SOL | %d pos | %s | OINK", s.CycleNumber, pot, positions, summary)
	second := healthLine(s)

	report := first + "\n" + second + "\n"
	for _, forbidden := range forbiddenTokens {
		report = strings.ReplaceAll(report, forbidden, "[redacted]")
	}
	return report
}

func cycleSummary(s Summary) string {
	if s.Halted {
		return fmt.Sprintf("HALTED (%s: %s)", s.HaltGuard, s.HaltReason)
	}
	if s.ObserveOnly {
		return "observe-only (cycle budget exceeded)"
	}
	if s.ExitsFired == 0 && s.AutoExecutions == 0 {
		return "no action"
	}
	return fmt.Sprintf("%d exits, %d auto-executes", s.ExitsFired, s.AutoExecutions)
}

func healthLine(s Summary) string {
	if len(s.Errors) == 0 {
		return tierPrefix(cycleerrors.Info) + " clean cycle, no errors"
	}
	worst := s.Errors[0]
	for _, e := range s.Errors {
		if tierRank(e.Tier) > tierRank(worst.Tier) {
			worst = e
		}
	}
	return fmt.Sprintf("%s %d error(s) this cycle; worst: %s", tierPrefix(worst.Tier), len(s.Errors), worst.Error())
}

func tierRank(t cycleerrors.Tier) int {
	switch t {
	case cycleerrors.Critical:
		return 3
	case cycleerrors.Warning:
		return 2
	case cycleerrors.Info:
		return 1
	default:
		return 0
	}
}

// WriteLatestMD regenerates latest.md atomically at path, overwriting
// whatever was there; the orchestrator is the only writer of this file.
func WriteLatestMD(path string, s Summary) error {
	body := "# Heartbeat\n\n" + Render(s) + fmt.Sprintf("\n_generated %s_\n", s.Now.UTC().Format(time.RFC3339))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("report: write latest.md temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("report: rename latest.md into place: %w", err)
	}
	return nil
}
