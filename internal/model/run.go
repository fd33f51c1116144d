package model

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a workflow pipeline position. Transitions only move forward,
// except the escalate and retry edges which may revisit HumanReview or
// terminate in Failed.
type Stage string

const (
	StageIngested    Stage = "ingested"
	StageExtracted   Stage = "extracted"
	StageRetrieved   Stage = "retrieved"
	StageReasoned    Stage = "reasoned"
	StageDrafted     Stage = "drafted"
	StageVerified    Stage = "verified"
	StageHumanReview Stage = "human_review"
	StageExecuted    Stage = "executed"
)

// Status is a workflow run's lifecycle status
type Status string

const (
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting_review" // suspended at the human gate
	StatusExecuted  Status = "executed"
	StatusRejected  Status = "rejected"
	StatusEscalated Status = "escalated"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status halts further automation.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusEscalated, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ReviewVerdict is the human reviewer's signal at the HumanReview gate
type ReviewVerdict string

const (
	ReviewApprove ReviewVerdict = "approve"
	ReviewReject  ReviewVerdict = "reject"
	ReviewModify  ReviewVerdict = "modify"
)

// ReviewSignal is delivered asynchronously by the external review surface,
// keyed by claim id.
type ReviewSignal struct {
	ClaimID     uuid.UUID     `json:"claim_id"`
	Verdict     ReviewVerdict `json:"verdict"`
	Reviewer    string        `json:"reviewer,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	ModifyBody  string        `json:"modify_body,omitempty"` // replacement draft body on modify
	SignalledAt time.Time     `json:"signalled_at"`
}

// WorkflowRun owns one claim's lifecycle from ingestion to a terminal state.
type WorkflowRun struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	Stage     Stage     `json:"stage"`
	Status    Status    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	Rationale string    `json:"rationale,omitempty"` // human-readable terminal rationale

	// Stage artifacts (immutable once written by their stage)
	Denial    *ClaimDenial         `json:"denial,omitempty"`
	Spans     []SourceSpan         `json:"spans,omitempty"`
	Decision  *Decision            `json:"decision,omitempty"`
	Draft     *AppealDraft         `json:"draft,omitempty"`
	Metrics   *VerificationMetrics `json:"metrics,omitempty"`
	Execution *ExecutionResult     `json:"execution,omitempty"`

	SnapshotVersion string    `json:"snapshot_version,omitempty"`
	Redrafts        int       `json:"redrafts"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	CompletedAt     time.Time `json:"completed_at,omitzero"`
}
