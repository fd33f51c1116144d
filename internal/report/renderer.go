package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/veritclaim/triage/internal/gate"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/score"
)

// RunReport bundles a terminal workflow run with its audit history.
// PHI fields render as digests through their JSON marshalling, so the
// artifact is safe to archive.
type RunReport struct {
	Run         *model.WorkflowRun `json:"run"`
	Events      []model.AuditEvent `json:"audit_events"`
	Strength    *score.Score       `json:"appeal_strength,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Renderer writes run and gate reports
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a new renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the report as a JSON artifact
func (r *Renderer) RenderJSON(report *RunReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes a human-readable report
func (r *Renderer) RenderMarkdown(report *RunReport, path string) error {
	var b strings.Builder
	run := report.Run

	fmt.Fprintf(&b, "# Triage Report: claim %s\n\n", run.ClaimID)
	fmt.Fprintf(&b, "- Status: **%s**\n", run.Status)
	fmt.Fprintf(&b, "- Final stage: %s\n", run.Stage)
	fmt.Fprintf(&b, "- Rationale: %s\n", run.Rationale)
	if run.Denial != nil {
		fmt.Fprintf(&b, "- Denial reason: %s\n", run.Denial.Reason)
		fmt.Fprintf(&b, "- Patient: %s\n", run.Denial.PatientName.Masked())
	}
	if run.LastError != "" {
		fmt.Fprintf(&b, "- Last error: %s\n", run.LastError)
	}
	b.WriteString("\n")

	if run.Metrics != nil {
		m := run.Metrics
		b.WriteString("## Verification\n\n")
		fmt.Fprintf(&b, "| Citations | Valid | Hallucinated | Deferred | Rate | Coverage |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %d | %d | %d | %d | %.2f%% | %.2f%% |\n\n",
			m.TotalCitations, m.ValidCitations, m.HallucinatedCitations, m.DeferredCitations,
			m.HallucinationRate*100, m.EvidenceCoverage*100)
	}

	if report.Strength != nil {
		b.WriteString("## Appeal Strength\n\n")
		fmt.Fprintf(&b, "Index: **%d/100** (confidence: %s)\n\n", report.Strength.Index, report.Strength.Confidence)
		for _, sig := range report.Strength.Signals {
			fmt.Fprintf(&b, "- [%s] %s\n", sig.Severity, sig.Description)
		}
		b.WriteString("\n")
	}

	if len(report.Events) > 0 {
		b.WriteString("## Audit Trail\n\n")
		for _, ev := range report.Events {
			marker := "ok"
			if !ev.Success {
				marker = "FAIL"
			}
			fmt.Fprintf(&b, "%4d. [%s] %-24s %-6s %s\n",
				ev.Sequence, ev.Timestamp.Format(time.RFC3339), ev.EventType, marker, ev.Description)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		fmt.Fprintf(&b, "---\nGenerated %s against snapshot %s.\n",
			report.GeneratedAt.Format(time.RFC3339), run.SnapshotVersion)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

// RenderSummary prints a short terminal summary
func (r *Renderer) RenderSummary(report *RunReport, w io.Writer) {
	run := report.Run
	fmt.Fprintf(w, "Claim %s: %s (%s)\n", run.ClaimID, run.Status, run.Rationale)
	if run.Metrics != nil {
		fmt.Fprintf(w, "  citations: %d valid / %d total, hallucination rate %.2f%%\n",
			run.Metrics.ValidCitations, run.Metrics.TotalCitations, run.Metrics.HallucinationRate*100)
	}
	if report.Strength != nil {
		fmt.Fprintf(w, "  appeal strength: %d/100 (%s)\n", report.Strength.Index, report.Strength.Confidence)
	}
	if run.Execution != nil && run.Execution.Submitted {
		fmt.Fprintf(w, "  submitted as %s\n", run.Execution.Reference)
	}
}

// RenderGateReport prints the CI gate report. Deployment tooling keys off
// the overall PASS/FAIL line and the process exit code.
func RenderGateReport(report gate.Report, w io.Writer) {
	fmt.Fprintf(w, "CI Gate Report\n")
	fmt.Fprintf(w, "==============\n\n")

	for _, cat := range []gate.Category{gate.CategoryNormal, gate.CategoryEdgeCase, gate.CategoryAdversarial} {
		stats, ok := report.Categories[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-12s %d passed, %d failed of %d\n", cat, stats.Passed, stats.Failed, stats.Total)
	}
	fmt.Fprintln(w)

	for _, check := range report.Checks {
		status := "PASS"
		if !check.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%-28s %s  value=%.4f threshold=%.4f  (%s)\n",
			check.Name, status, check.Value, check.Threshold, check.Formula)
	}

	fmt.Fprintln(w)
	if report.Passed {
		fmt.Fprintln(w, "OVERALL: PASS")
	} else {
		fmt.Fprintln(w, "OVERALL: FAIL")
	}
}

// WriteGateJSON writes the gate report artifact for CI tooling.
func WriteGateJSON(report gate.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gate report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write gate report: %w", err)
	}
	return nil
}
