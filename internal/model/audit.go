package model

import (
	"time"

	"github.com/google/uuid"
)

// Actor identifies who performed an audited action
type Actor string

const (
	ActorSystem Actor = "system"
	ActorHuman  Actor = "human"
)

// Audit event type names, kept stable for compliance tooling
const (
	EventDocumentIngested      = "document_ingested"
	EventClaimExtracted        = "claim_extracted"
	EventPolicyRetrieved       = "policy_retrieved"
	EventDecisionMade          = "decision_made"
	EventAppealDrafted         = "appeal_drafted"
	EventCitationVerified      = "citation_verified"
	EventHallucinationDetected = "hallucination_detected"
	EventHumanReviewRequested  = "human_review_requested"
	EventHumanApproved         = "human_approved"
	EventHumanRejected         = "human_rejected"
	EventHumanModified         = "human_modified"
	EventAppealSubmitted       = "appeal_submitted"
	EventRunEscalated          = "run_escalated"
	EventRunCancelled          = "run_cancelled"
	EventSystemError           = "system_error"
	EventPHIAccessed           = "phi_accessed"
)

// AuditEvent is one entry in a claim's append-only ledger. Sequence numbers
// are gap-free and strictly increasing per claim; events are never updated
// or deleted.
type AuditEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	ClaimID       uuid.UUID `json:"claim_id"`
	Sequence      uint64    `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	Stage         string    `json:"stage"`
	EventType     string    `json:"event_type"`
	Actor         Actor     `json:"actor"`
	PHIAccessed   bool      `json:"phi_accessed"`
	Success       bool      `json:"success"`
	Description   string    `json:"description"`
	PayloadDigest string    `json:"payload_digest,omitempty"` // SHA-256 hex, never raw PHI
	ErrorMessage  string    `json:"error_message,omitempty"`
}
