package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/llm"
	"github.com/veritclaim/triage/internal/model"
)

// LLMDrafter produces the appeal body with an LLM provider under strict
// grounding. The prompt carries only the decision rationale and the
// verified policy text, never patient identifiers, and the returned draft
// keeps the verified citations as its citation set so the verification
// stage re-checks exactly what the model was allowed to use.
type LLMDrafter struct {
	provider llm.Provider
}

// NewLLMDrafter wraps an LLM provider as a Drafter.
func NewLLMDrafter(provider llm.Provider) *LLMDrafter {
	return &LLMDrafter{provider: provider}
}

// Draft writes the appeal letter from the decision and verified citations.
func (d *LLMDrafter) Draft(ctx context.Context, decision model.Decision, verified []model.Citation) (*model.AppealDraft, error) {
	if len(verified) == 0 {
		return nil, fmt.Errorf("no verified citations to draft from")
	}

	resp, err := d.provider.Draft(ctx, llm.DraftRequest{
		Decision:  decision,
		Citations: verified,
	})
	if err != nil {
		return nil, fmt.Errorf("llm draft: %w", err)
	}

	// Keep only the citations the draft actually cited. Markers are
	// 1-based positions into the verified set.
	cited := make([]model.Citation, 0, len(resp.CitedMarkers))
	for _, m := range resp.CitedMarkers {
		if m >= 1 && m <= len(verified) {
			cited = append(cited, verified[m-1])
		}
	}
	if len(cited) == 0 {
		cited = verified
	}

	return &model.AppealDraft{
		DraftID:   uuid.New(),
		ClaimID:   decision.ClaimID,
		Body:      resp.Body,
		Citations: cited,
		DraftedAt: time.Now().UTC(),
	}, nil
}
