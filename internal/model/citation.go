package model

import (
	"time"

	"github.com/google/uuid"
)

// CitationCategory classifies the source category of a citation
type CitationCategory string

const (
	CategoryEvidence CitationCategory = "evidence"
	CategoryPolicy   CitationCategory = "policy"
	CategoryClinical CitationCategory = "clinical"
)

// Citation pairs a generated claim statement with its claimed source span.
// Created by the reasoner/drafter; never mutated after verification except
// to attach the result.
type Citation struct {
	CitationID uuid.UUID        `json:"citation_id"`
	ClaimText  string           `json:"claim_text"`
	Span       SourceSpan       `json:"source_span"`
	Category   CitationCategory `json:"citation_type,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`

	// Attached by the verification engine, exactly once per pass
	Result *VerificationResult `json:"verification,omitempty"`
}

// VerificationStatus is the tri-state outcome of verifying one citation
type VerificationStatus string

const (
	VerificationValid        VerificationStatus = "valid"
	VerificationHallucinated VerificationStatus = "hallucinated"
	// VerificationDeferred means the similarity provider was unavailable.
	// Deferred is neither valid nor hallucinated and fails the whole set.
	VerificationDeferred VerificationStatus = "deferred"
)

// VerificationResult records the grounding check for one citation
type VerificationResult struct {
	CitationID            uuid.UUID          `json:"citation_id"`
	Status                VerificationStatus `json:"status"`
	SimilarityScore       float64            `json:"similarity_score"` // 0..1, 0 when unresolved
	IsValid               bool               `json:"is_valid"`
	HallucinationDetected bool               `json:"hallucination_detected"`
	Resolved              bool               `json:"resolved"`
	FailureReason         string             `json:"failure_reason,omitempty"`
	VerifiedAt            time.Time          `json:"verified_at"`
}

// VerificationMetrics are run-level aggregates over a citation set.
// They feed the CI gate evaluator and the orchestrator's escalation guards.
type VerificationMetrics struct {
	TotalCitations        int                      `json:"total_citations"`
	ValidCitations        int                      `json:"valid_citations"`
	HallucinatedCitations int                      `json:"hallucinated_citations"`
	DeferredCitations     int                      `json:"deferred_citations"`
	HallucinationRate     float64                  `json:"hallucination_rate"`
	EvidenceCoverage      float64                  `json:"evidence_coverage"`
	ByCategory            map[CitationCategory]int `json:"by_category,omitempty"`
}
