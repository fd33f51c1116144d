package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/phi"
)

// DenialReason categorizes why a claim was denied
type DenialReason string

const (
	DenialDuplicateSubmission   DenialReason = "duplicate_submission"
	DenialCPTMismatch           DenialReason = "cpt_mismatch"
	DenialDocumentationMismatch DenialReason = "documentation_mismatch"
	DenialEligibilityCutoff     DenialReason = "eligibility_cutoff"
	DenialPriorAuthMissing      DenialReason = "prior_authorization_missing"
	DenialNotMedicallyNecessary DenialReason = "not_medically_necessary"
	DenialOutOfNetwork          DenialReason = "out_of_network"
	DenialTimelyFilingLimit     DenialReason = "timely_filing_limit"
	DenialCodingError           DenialReason = "coding_error"
	DenialInsufficientDocs      DenialReason = "insufficient_documentation"
	DenialOther                 DenialReason = "other"
)

// ClaimDenial is a denied healthcare claim as extracted from a denial
// document. Immutable once accepted into the workflow.
type ClaimDenial struct {
	ClaimID     uuid.UUID    `json:"claim_id"`
	DenialID    uuid.UUID    `json:"denial_id"`
	ClaimNumber string       `json:"claim_number,omitempty"` // e.g. CLM-2024-001234
	Reason      DenialReason `json:"denial_reason"`
	ReasonText  string       `json:"denial_reason_text"`

	// PHI fields - never logged in cleartext
	PatientName phi.Sensitive `json:"patient_name,omitempty"`
	MemberID    phi.Sensitive `json:"member_id,omitempty"`
	DateOfBirth phi.Sensitive `json:"date_of_birth,omitempty"`

	// MemberIDOnFile is the payor-roster cross-reference extracted from the
	// same document. A mismatch with MemberID is a PHI-identity
	// inconsistency and escalates the claim.
	MemberIDOnFile phi.Sensitive `json:"member_id_on_file,omitempty"`

	ServiceDate  time.Time `json:"service_date"`
	BilledAmount string    `json:"billed_amount"` // decimal string, e.g. "1240.50"
	PayorName    string    `json:"payor_name,omitempty"`

	// Source document and extraction metadata
	SourceDocumentID uuid.UUID `json:"source_document_id,omitempty"`
	Confidence       float64   `json:"extraction_confidence"` // 0..1
	ExtractedAt      time.Time `json:"extracted_at"`
}

// AppealDraft is the drafted appeal letter with its supporting citations
type AppealDraft struct {
	DraftID   uuid.UUID  `json:"draft_id"`
	ClaimID   uuid.UUID  `json:"claim_id"`
	Body      string     `json:"body"`
	Citations []Citation `json:"citations"`
	DraftedAt time.Time  `json:"drafted_at"`
	Revision  int        `json:"revision"` // 0 on first draft, bumped on each re-draft
}

// ExecutionResult is returned by the external executor after an approved
// appeal has been submitted
type ExecutionResult struct {
	ClaimID    uuid.UUID `json:"claim_id"`
	Submitted  bool      `json:"submitted"`
	Reference  string    `json:"execution_reference,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}
