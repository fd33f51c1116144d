package agent

import (
	"testing"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

const sampleBundle = `
claim:
  claim_number: CLM-2026-000713
  denial_reason: prior_authorization_missing
  denial_reason_text: Prior authorization was not obtained for the service.
  patient_name: Jane Roe
  member_id: MBR-001
  date_of_birth: "1981-04-12"
  service_date: "2026-02-14"
  billed_amount: "1240.50"
  payor_name: Acme Health
  extraction_confidence: 0.93
review:
  verdict: reject
  reviewer: dr-lee
  notes: insufficient clinical support
category: normal
expected:
  outcome: rejected
`

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if b.Claim.ClaimNumber != "CLM-2026-000713" {
		t.Errorf("claim number %q", b.Claim.ClaimNumber)
	}
	if b.Category != "normal" || b.Expected.Outcome != "rejected" {
		t.Errorf("labels: category=%q expected=%q", b.Category, b.Expected.Outcome)
	}
}

func TestParseBundle_RequiresDenialReason(t *testing.T) {
	if _, err := ParseBundle([]byte("claim:\n  claim_number: CLM-1\n")); err == nil {
		t.Error("expected error for bundle without denial_reason")
	}
}

func TestParseBundle_RejectsFreeText(t *testing.T) {
	if _, err := ParseBundle([]byte("Dear provider, your claim was denied.")); err == nil {
		t.Error("free-text letters are not bundles")
	}
}

func TestBundle_Denial(t *testing.T) {
	b, err := ParseBundle([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	denial, err := b.Denial()
	if err != nil {
		t.Fatalf("denial: %v", err)
	}

	if denial.Reason != model.DenialPriorAuthMissing {
		t.Errorf("reason %q", denial.Reason)
	}
	if denial.PatientName.Reveal() != "Jane Roe" {
		t.Error("patient name not carried through")
	}
	if denial.ServiceDate.Format("2006-01-02") != "2026-02-14" {
		t.Errorf("service date %s", denial.ServiceDate)
	}
	if denial.Confidence != 0.93 {
		t.Errorf("confidence %.2f", denial.Confidence)
	}
	if denial.ClaimID == uuid.Nil {
		t.Error("denial should get a claim id")
	}
}

func TestBundle_ProposedCitations(t *testing.T) {
	docID := uuid.New()
	data := []byte(`
claim:
  denial_reason: not_medically_necessary
citations:
  - claim_text: "the policy covers this service"
    document_id: ` + docID.String() + `
    start_byte: 10
    end_byte: 90
    confidence: 0.8
`)
	b, err := ParseBundle(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	citations, err := b.ProposedCitations()
	if err != nil {
		t.Fatalf("citations: %v", err)
	}
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(citations))
	}
	c := citations[0]
	if c.Span.DocumentID != docID || c.Span.StartByte != 10 || c.Span.EndByte != 90 {
		t.Errorf("span %+v", c.Span)
	}
	if c.Category != model.CategoryPolicy {
		t.Errorf("empty category should default to policy, got %q", c.Category)
	}
}

func TestBundle_ReviewSignalDefaults(t *testing.T) {
	b, err := ParseBundle([]byte("claim:\n  denial_reason: coding_error\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	sig := b.ReviewSignal(uuid.Nil)
	if sig.Verdict != model.ReviewApprove {
		t.Errorf("default verdict %q", sig.Verdict)
	}
	if sig.Reviewer != "scripted-reviewer" {
		t.Errorf("default reviewer %q", sig.Reviewer)
	}
}
