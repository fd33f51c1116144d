// Package validate performs structural checks on citation sets before the
// similarity provider is involved. Structural defects (unresolvable spans,
// degenerate ranges, duplicates) never need an external call to reject.
package validate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/model"
)

// Result is the structural lint outcome for one citation.
type Result struct {
	CitationID string
	Issues     []string
}

// OK reports whether the citation passed every structural check.
func (r Result) OK() bool {
	return len(r.Issues) == 0
}

// Validator lints citation sets concurrently
type Validator struct {
	maxWorkers int
}

// NewValidator creates a new validator
func NewValidator(maxWorkers int) *Validator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Validator{maxWorkers: maxWorkers}
}

// Validate lints all citations concurrently. Results are positional: the
// i-th result belongs to the i-th citation.
func (v *Validator) Validate(ctx context.Context, citations []model.Citation, snapshot *index.Snapshot) []Result {
	results := make([]Result, len(citations))
	if len(citations) == 0 {
		return results
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, citation := range citations {
		wg.Add(1)
		go func(idx int, c model.Citation) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = Result{
					CitationID: c.CitationID.String(),
					Issues:     []string{"context cancelled"},
				}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = v.validateSingle(c, snapshot)
		}(i, citation)
	}

	wg.Wait()

	// Duplicate detection needs the full set, so it runs after the
	// concurrent pass.
	markDuplicates(citations, results)
	return results
}

// validateSingle applies the per-citation structural checks
func (v *Validator) validateSingle(c model.Citation, snapshot *index.Snapshot) Result {
	result := Result{CitationID: c.CitationID.String()}

	if strings.TrimSpace(c.ClaimText) == "" {
		result.Issues = append(result.Issues, "empty claim text")
	}

	switch c.Category {
	case model.CategoryEvidence, model.CategoryPolicy, model.CategoryClinical:
	default:
		result.Issues = append(result.Issues, fmt.Sprintf("unknown category %q", c.Category))
	}

	if c.Confidence < 0 || c.Confidence > 1 {
		result.Issues = append(result.Issues, fmt.Sprintf("confidence %.2f outside [0,1]", c.Confidence))
	}

	if c.Span.Length() == 0 {
		result.Issues = append(result.Issues, "degenerate span range")
	} else if snapshot != nil {
		if _, err := snapshot.Resolve(c.Span); err != nil {
			result.Issues = append(result.Issues, fmt.Sprintf("span does not resolve: %v", err))
		}
	}

	return result
}

// markDuplicates flags citations whose document and byte range repeat an
// earlier citation. The first occurrence stays clean.
func markDuplicates(citations []model.Citation, results []Result) {
	seen := make(map[string]int, len(citations))
	for i, c := range citations {
		key := fmt.Sprintf("%s:%d:%d", c.Span.DocumentID, c.Span.StartByte, c.Span.EndByte)
		if first, dup := seen[key]; dup {
			results[i].Issues = append(results[i].Issues,
				fmt.Sprintf("duplicates citation %s", citations[first].CitationID))
			continue
		}
		seen[key] = i
	}
}
