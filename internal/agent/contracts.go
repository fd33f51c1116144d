// Package agent defines the versioned contracts for the external
// collaborators the orchestrator sequences. The core never implements
// extraction, retrieval, reasoning, or drafting itself; it consumes these
// capabilities through narrow interfaces so implementations are swappable
// without touching the orchestrator.
package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

// Extractor turns a denial document into a structured ClaimDenial.
// Low extraction confidence is reported through the Confidence field and
// gated by the orchestrator, not by the extractor.
type Extractor interface {
	Extract(ctx context.Context, documentBytes []byte) (*model.ClaimDenial, error)
}

// RankedSpan is one retrieval hit.
type RankedSpan struct {
	Span      model.SourceSpan `json:"span"`
	Relevance float64          `json:"relevance_score"`
}

// Retriever searches the policy index for spans relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]RankedSpan, error)
}

// Reasoner produces a decision draft with proposed citations from the
// denial and the retrieved spans.
type Reasoner interface {
	Reason(ctx context.Context, denial model.ClaimDenial, spans []model.SourceSpan) (*model.Decision, error)
}

// Drafter writes the appeal letter from a decision and its verified
// citations.
type Drafter interface {
	Draft(ctx context.Context, decision model.Decision, verified []model.Citation) (*model.AppealDraft, error)
}

// Executor submits an approved appeal. Only invoked after human approval.
type Executor interface {
	Execute(ctx context.Context, draft model.AppealDraft) (*model.ExecutionResult, error)
}

// ReviewQueue delivers asynchronous human review signals keyed by claim id.
// Await blocks until a signal arrives or the context is cancelled; the
// suspension is indefinite by contract.
type ReviewQueue interface {
	Await(ctx context.Context, claimID uuid.UUID) (model.ReviewSignal, error)
}
