package model

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal reasoning result for one claim
type Outcome string

const (
	OutcomeAppeal   Outcome = "appeal"    // file an automated appeal
	OutcomeNoAppeal Outcome = "no_appeal" // denial stands, do not appeal
	OutcomeEscalate Outcome = "escalate"  // requires human judgment
)

// Decision is the policy reasoner's terminal artifact for one claim.
// An Appeal or Escalate decision must carry at least one valid citation
// before it becomes human-visible.
type Decision struct {
	DecisionID uuid.UUID  `json:"decision_id"`
	ClaimID    uuid.UUID  `json:"claim_id"`
	Outcome    Outcome    `json:"outcome"`
	Rationale  string     `json:"rationale"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"` // 0..1

	PolicyVersion string    `json:"policy_version,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`

	// Escalation context, set when Outcome == OutcomeEscalate
	EscalationReason string `json:"escalation_reason,omitempty"`
}

// ValidCitations returns the citations verified as grounded.
func (d Decision) ValidCitations() []Citation {
	var out []Citation
	for _, c := range d.Citations {
		if c.Result != nil && c.Result.IsValid {
			out = append(out, c)
		}
	}
	return out
}
