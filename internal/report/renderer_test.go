package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/gate"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/phi"
	"github.com/veritclaim/triage/internal/score"
)

func sampleReport() *RunReport {
	claimID := uuid.New()
	return &RunReport{
		Run: &model.WorkflowRun{
			ClaimID:   claimID,
			Stage:     model.StageExecuted,
			Status:    model.StatusExecuted,
			Rationale: "timely filing window misapplied",
			Denial: &model.ClaimDenial{
				ClaimID:     claimID,
				Reason:      model.DenialPriorAuthMissing,
				PatientName: phi.Sensitive("Margaret Chen"),
			},
			Metrics: &model.VerificationMetrics{
				TotalCitations:   4,
				ValidCitations:   4,
				EvidenceCoverage: 1.0,
			},
			Execution:       &model.ExecutionResult{Submitted: true, Reference: "APL-0042"},
			SnapshotVersion: "snap-2026-01",
		},
		Events: []model.AuditEvent{
			{Sequence: 1, EventType: model.EventDocumentIngested, Success: true, Description: "document received", Timestamp: time.Now()},
			{Sequence: 2, EventType: model.EventHallucinationDetected, Success: false, Description: "citation failed verification", Timestamp: time.Now()},
		},
		Strength: &score.Score{
			Index:      91,
			Confidence: "high",
			Signals:    []score.Signal{{Type: "citation_grounding", Severity: score.SeverityInfo, Description: "Evidence coverage: 100%"}},
		},
		GeneratedAt: time.Now(),
	}
}

func TestRenderMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")

	if err := NewRenderer(true).RenderMarkdown(sampleReport(), path); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"# Triage Report",
		"Status: **executed**",
		"## Verification",
		"## Appeal Strength",
		"Index: **91/100**",
		"## Audit Trail",
		"document received",
		"FAIL",
		"snapshot snap-2026-01",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// The patient name renders masked, never in cleartext.
	if strings.Contains(out, "Margaret Chen") {
		t.Error("report leaks patient name")
	}
	if !strings.Contains(out, "M***") {
		t.Error("report should carry the masked patient name")
	}
}

func TestRenderMarkdown_FooterOptional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")

	if err := NewRenderer(false).RenderMarkdown(sampleReport(), path); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "Generated ") {
		t.Error("footer rendered despite being disabled")
	}
}

func TestRenderJSON_DigestsPHI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	if err := NewRenderer(false).RenderJSON(sampleReport(), path); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	if strings.Contains(string(data), "Margaret Chen") {
		t.Error("JSON artifact leaks patient name")
	}
	if !strings.Contains(string(data), "sha256:") {
		t.Error("JSON artifact should carry PHI digests")
	}

	var decoded RunReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if decoded.Run.Status != model.StatusExecuted {
		t.Errorf("round-tripped status = %s", decoded.Run.Status)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(false).RenderSummary(sampleReport(), &buf)

	out := buf.String()
	if !strings.Contains(out, "executed") {
		t.Errorf("summary missing status: %q", out)
	}
	if !strings.Contains(out, "submitted as APL-0042") {
		t.Errorf("summary missing submission reference: %q", out)
	}
	if !strings.Contains(out, "appeal strength: 91/100") {
		t.Errorf("summary missing strength: %q", out)
	}
}

func TestRenderGateReport(t *testing.T) {
	rep := gate.Report{
		Passed: false,
		Checks: []gate.Check{
			{Name: "hallucination_rate", Value: 0.03, Threshold: 0.02, Passed: false, Formula: "hallucinated / total <= threshold"},
			{Name: "evidence_coverage", Value: 0.97, Threshold: 0.85, Passed: true, Formula: "valid / total >= threshold"},
		},
		Categories: map[gate.Category]gate.CategoryStats{
			gate.CategoryNormal:      {Total: 20, Passed: 19, Failed: 1},
			gate.CategoryAdversarial: {Total: 5, Passed: 5, Failed: 0},
		},
	}

	var buf bytes.Buffer
	RenderGateReport(rep, &buf)
	out := buf.String()

	if !strings.Contains(out, "OVERALL: FAIL") {
		t.Errorf("missing overall verdict: %q", out)
	}
	if !strings.Contains(out, "hallucination_rate") || !strings.Contains(out, "FAIL") {
		t.Error("failing check not rendered")
	}
	if !strings.Contains(out, "normal") || !strings.Contains(out, "adversarial") {
		t.Error("category stats not rendered")
	}

	rep.Passed = true
	buf.Reset()
	RenderGateReport(rep, &buf)
	if !strings.Contains(buf.String(), "OVERALL: PASS") {
		t.Error("missing overall pass verdict")
	}
}

func TestWriteGateJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.json")

	rep := gate.Report{Passed: true, Categories: map[gate.Category]gate.CategoryStats{}}
	if err := WriteGateJSON(rep, path); err != nil {
		t.Fatalf("WriteGateJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var decoded gate.Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if !decoded.Passed {
		t.Error("round-tripped Passed = false")
	}
}
