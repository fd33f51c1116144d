// Package score condenses a finished run into a 0-100 appeal strength
// index with transparent diagnostic signals. The index is advisory for
// reviewers; it never gates the workflow.
package score

import (
	"fmt"
	"math"

	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/validate"
)

// Severity grades a diagnostic signal
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Signal is one diagnostic observation with its transparent inputs
type Signal struct {
	Type        string                 `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Score is the appeal strength result
type Score struct {
	Index      int      `json:"index"` // 0-100
	Confidence string   `json:"confidence"`
	Signals    []Signal `json:"signals"`
}

// Scorer calculates the appeal strength index and generates signals
type Scorer struct {
	authority *validate.AuthorityClassifier
}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{authority: validate.NewAuthorityClassifier()}
}

// Calculate scores a run from its verification metrics, cited documents,
// decision confidence, and drafting history.
func (s *Scorer) Calculate(run *model.WorkflowRun, snapshot *index.Snapshot) Score {
	var signals []Signal

	// 1. Citation grounding (0-40 points)
	groundingScore, groundingSignal := s.calculateGrounding(run.Metrics)
	signals = append(signals, groundingSignal)

	// 2. Authority of cited documents (0-30 points)
	authorityScore, authoritySignal := s.calculateAuthority(run, snapshot)
	signals = append(signals, authoritySignal)

	// 3. Decision confidence (0-20 points)
	confidenceScore, confidenceSignal := s.calculateDecisionConfidence(run.Decision)
	signals = append(signals, confidenceSignal)

	// 4. Draft stability (0-10 points)
	stabilityScore, stabilitySignal := s.calculateStability(run.Redrafts)
	signals = append(signals, stabilitySignal)

	totalScore := groundingScore + authorityScore + confidenceScore + stabilityScore

	// Any hallucination that survived to the final draft is a penalty on
	// top of its grounding cost.
	hallucinated := run.Metrics != nil && run.Metrics.HallucinatedCitations > 0
	if hallucinated {
		totalScore -= 10
		if totalScore < 0 {
			totalScore = 0
		}
		signals = append(signals, Signal{
			Type:        "hallucination_penalty",
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("%d citations failed verification in the final draft", run.Metrics.HallucinatedCitations),
			Data:        map[string]interface{}{"penalty": 10},
		})
	}

	return Score{
		Index:      totalScore,
		Confidence: s.determineConfidence(totalScore, run, hallucinated),
		Signals:    signals,
	}
}

// calculateGrounding calculates citation grounding score (0-40 points)
func (s *Scorer) calculateGrounding(metrics *model.VerificationMetrics) (int, Signal) {
	if metrics == nil || metrics.TotalCitations == 0 {
		return 0, Signal{
			Type:        "citation_grounding",
			Severity:    SeverityCritical,
			Description: "No verified citations",
			Data:        map[string]interface{}{"citations": 0},
		}
	}

	score := int(math.Min(metrics.EvidenceCoverage*40, 40))

	severity := SeverityInfo
	if metrics.EvidenceCoverage < 0.5 {
		severity = SeverityCritical
	} else if metrics.EvidenceCoverage < 0.85 {
		severity = SeverityWarning
	}

	return score, Signal{
		Type:        "citation_grounding",
		Severity:    severity,
		Description: fmt.Sprintf("Evidence coverage: %.0f%%", metrics.EvidenceCoverage*100),
		Data: map[string]interface{}{
			"valid":   metrics.ValidCitations,
			"total":   metrics.TotalCitations,
			"score":   score,
			"formula": "min(evidence_coverage * 40, 40)",
		},
	}
}

// calculateAuthority calculates authority distribution score (0-30 points)
func (s *Scorer) calculateAuthority(run *model.WorkflowRun, snapshot *index.Snapshot) (int, Signal) {
	if run.Draft == nil || len(run.Draft.Citations) == 0 || snapshot == nil {
		return 0, Signal{
			Type:        "authority_distribution",
			Severity:    SeverityWarning,
			Description: "No cited documents to classify",
			Data:        map[string]interface{}{"citations": 0},
		}
	}

	counts := map[validate.AuthorityTier]int{}
	var weightedSum float64
	for _, c := range run.Draft.Citations {
		docType := ""
		if doc, ok := snapshot.Document(c.Span.DocumentID); ok {
			docType = doc.Type
		}
		tier := s.authority.Classify(docType)
		counts[tier]++
		weightedSum += s.authority.Weight(tier)
	}

	total := len(run.Draft.Citations)
	score := int(weightedSum / float64(total) * 30)

	severity := SeverityInfo
	if counts[validate.TierPrimary] == 0 {
		severity = SeverityWarning
	}

	return score, Signal{
		Type:     "authority_distribution",
		Severity: severity,
		Description: fmt.Sprintf("Authority distribution: %d primary, %d secondary, %d tertiary",
			counts[validate.TierPrimary], counts[validate.TierSecondary], counts[validate.TierTertiary]),
		Data: map[string]interface{}{
			"primary":   counts[validate.TierPrimary],
			"secondary": counts[validate.TierSecondary],
			"tertiary":  counts[validate.TierTertiary],
			"total":     total,
			"score":     score,
			"formula":   "sum(tier_weight) / total * 30",
		},
	}
}

// calculateDecisionConfidence calculates decision confidence score (0-20 points)
func (s *Scorer) calculateDecisionConfidence(decision *model.Decision) (int, Signal) {
	if decision == nil {
		return 0, Signal{
			Type:        "decision_confidence",
			Severity:    SeverityWarning,
			Description: "No decision recorded",
		}
	}

	score := int(math.Min(decision.Confidence*20, 20))

	severity := SeverityInfo
	if decision.Confidence < 0.7 {
		severity = SeverityWarning
	}

	return score, Signal{
		Type:        "decision_confidence",
		Severity:    severity,
		Description: fmt.Sprintf("Decision confidence: %.2f", decision.Confidence),
		Data: map[string]interface{}{
			"confidence": decision.Confidence,
			"score":      score,
			"formula":    "min(confidence * 20, 20)",
		},
	}
}

// calculateStability calculates draft stability score (0-10 points). A
// draft that needed multiple redrafts to clear the gate is weaker evidence
// of a solid appeal.
func (s *Scorer) calculateStability(redrafts int) (int, Signal) {
	score := 10 - redrafts*5
	if score < 0 {
		score = 0
	}

	severity := SeverityInfo
	if redrafts > 0 {
		severity = SeverityWarning
	}

	return score, Signal{
		Type:        "draft_stability",
		Severity:    severity,
		Description: fmt.Sprintf("Draft revisions: %d", redrafts),
		Data: map[string]interface{}{
			"redrafts": redrafts,
			"score":    score,
			"formula":  "max(10 - redrafts * 5, 0)",
		},
	}
}

// determineConfidence determines the confidence level based on the score
func (s *Scorer) determineConfidence(score int, run *model.WorkflowRun, hallucinated bool) string {
	if hallucinated {
		return "low-medium"
	}
	if run.Metrics == nil || run.Metrics.ValidCitations < 3 {
		return "low"
	}
	if score >= 80 {
		return "high"
	} else if score >= 60 {
		return "medium"
	}
	return "low"
}
