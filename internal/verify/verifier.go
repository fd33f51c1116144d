package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/similarity"
	"github.com/veritclaim/triage/internal/validate"
)

// Verifier is the citation verification engine. For a fixed index snapshot
// and fixed inputs verification is reproducible: span resolution and the
// threshold comparison contain no randomness, and the similarity provider
// is treated as a pure function per (pair, snapshot version).
type Verifier struct {
	provider  similarity.Provider
	lint      *validate.Validator
	threshold float64
	minSpan   int
	now       func() time.Time // injectable for tests
}

// NewVerifier creates a new verifier
func NewVerifier(provider similarity.Provider, cfg model.VerificationConfig) *Verifier {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.85
	}
	minSpan := cfg.MinSpanLength
	if minSpan <= 0 {
		minSpan = 10
	}
	return &Verifier{
		provider:  provider,
		lint:      validate.NewValidator(0),
		threshold: threshold,
		minSpan:   minSpan,
		now:       time.Now,
	}
}

// Verify checks every citation against the snapshot and returns the
// annotated set plus run-level aggregates.
//
// Failure is atomic: if the similarity provider errors for any citation,
// that citation is marked Deferred, the remaining citations are left
// unscored, and ErrVerificationDeferred is returned so the orchestrator
// retries or escalates instead of treating a partial pass as verified.
func (v *Verifier) Verify(ctx context.Context, citations []model.Citation, snapshot *index.Snapshot) ([]model.Citation, model.VerificationMetrics, error) {
	if err := ctx.Err(); err != nil {
		return citations, model.VerificationMetrics{}, err
	}
	out := make([]model.Citation, len(citations))

	// Structural lint first: defects found here fail the citation without
	// spending a provider call on it.
	lint := v.lint.Validate(ctx, citations, snapshot)

	for i, citation := range citations {
		if !lint[i].OK() {
			out[i] = citation
			out[i].Result = &model.VerificationResult{
				CitationID:            citation.CitationID,
				Status:                model.VerificationHallucinated,
				HallucinationDetected: true,
				FailureReason:         strings.Join(lint[i].Issues, "; "),
				VerifiedAt:            v.now().UTC(),
			}
			continue
		}

		result, err := v.verifySingle(ctx, citation, snapshot)
		citation.Result = &result
		out[i] = citation

		if err != nil {
			// Copy the remaining citations through unscored.
			for j := i + 1; j < len(citations); j++ {
				out[j] = citations[j]
			}
			return out, Aggregate(out), fmt.Errorf("citation %s: %w", citation.CitationID, err)
		}
	}

	return out, Aggregate(out), nil
}

// verifySingle resolves the span and scores the claim against it.
func (v *Verifier) verifySingle(ctx context.Context, citation model.Citation, snapshot *index.Snapshot) (model.VerificationResult, error) {
	result := model.VerificationResult{
		CitationID: citation.CitationID,
		VerifiedAt: v.now().UTC(),
	}

	sourceText, err := snapshot.Resolve(citation.Span)
	if err != nil {
		result.Status = model.VerificationHallucinated
		result.HallucinationDetected = true
		result.FailureReason = err.Error()
		return result, nil
	}
	result.Resolved = true

	// A span too short to ground anything fails outright.
	if len(strings.TrimSpace(sourceText)) < v.minSpan {
		result.Status = model.VerificationHallucinated
		result.HallucinationDetected = true
		result.FailureReason = fmt.Sprintf("resolved span shorter than %d bytes", v.minSpan)
		return result, nil
	}

	score, err := v.provider.Score(ctx, citation.ClaimText, sourceText, snapshot.Version())
	if err != nil {
		result.Status = model.VerificationDeferred
		result.FailureReason = err.Error()
		return result, fmt.Errorf("%w: %v", model.ErrVerificationDeferred, err)
	}

	result.SimilarityScore = score
	result.IsValid = score >= v.threshold
	result.HallucinationDetected = !result.IsValid
	if result.IsValid {
		result.Status = model.VerificationValid
	} else {
		result.Status = model.VerificationHallucinated
		result.FailureReason = fmt.Sprintf("similarity %.4f below threshold %.4f", score, v.threshold)
	}

	return result, nil
}

// Aggregate recomputes the exact run-level ratios from a citation set.
// Repeated aggregation over the same set yields identical numbers.
func Aggregate(citations []model.Citation) model.VerificationMetrics {
	m := model.VerificationMetrics{
		TotalCitations: len(citations),
		ByCategory:     make(map[model.CitationCategory]int),
	}

	for _, c := range citations {
		if c.Category != "" {
			m.ByCategory[c.Category]++
		}
		if c.Result == nil {
			continue
		}
		switch c.Result.Status {
		case model.VerificationValid:
			m.ValidCitations++
		case model.VerificationHallucinated:
			m.HallucinatedCitations++
		case model.VerificationDeferred:
			m.DeferredCitations++
		}
	}

	if m.TotalCitations > 0 {
		m.HallucinationRate = float64(m.HallucinatedCitations) / float64(m.TotalCitations)
		m.EvidenceCoverage = float64(m.ValidCitations) / float64(m.TotalCitations)
	}

	return m
}
