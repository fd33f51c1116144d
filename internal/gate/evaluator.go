// Package gate evaluates aggregate quality metrics from a labeled batch of
// runs against fixed deployment-blocking thresholds. The evaluator is a
// pure function of its inputs: it holds no state and performs no retries.
package gate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

// Category labels a regression test case
type Category string

const (
	CategoryNormal      Category = "normal"
	CategoryEdgeCase    Category = "edge_case"
	CategoryAdversarial Category = "adversarial"
)

// RunOutcome is one completed run in a labeled batch.
type RunOutcome struct {
	ClaimID  uuid.UUID                 `json:"claim_id"`
	Category Category                  `json:"category"`
	Passed   bool                      `json:"passed"`   // run matched its gold label
	Detected bool                      `json:"detected"` // adversarial: planted hallucination was flagged
	Metrics  model.VerificationMetrics `json:"metrics"`
}

// Check is one threshold comparison with its transparent inputs.
type Check struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
	Formula   string  `json:"formula"`
}

// CategoryStats summarizes one category of the batch.
type CategoryStats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Report is the gate evaluator's structured output. Overall Passed gates
// deployment; a CI harness maps it to the process exit code.
type Report struct {
	Passed     bool                       `json:"passed"`
	Checks     []Check                    `json:"checks"`
	Categories map[Category]CategoryStats `json:"categories"`

	TotalCitations        int     `json:"total_citations"`
	ValidCitations        int     `json:"valid_citations"`
	HallucinatedCitations int     `json:"hallucinated_citations"`
	HallucinationRate     float64 `json:"hallucination_rate"`
	EvidenceCoverage      float64 `json:"evidence_coverage"`
}

// Evaluate applies the gate thresholds to a batch of labeled outcomes.
func Evaluate(outcomes []RunOutcome, cfg model.GateConfig) Report {
	report := Report{
		Categories: make(map[Category]CategoryStats),
	}

	var adversarialTotal, adversarialDetected int
	for _, out := range outcomes {
		stats := report.Categories[out.Category]
		stats.Total++
		if out.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
		report.Categories[out.Category] = stats

		report.TotalCitations += out.Metrics.TotalCitations
		report.ValidCitations += out.Metrics.ValidCitations
		report.HallucinatedCitations += out.Metrics.HallucinatedCitations

		if out.Category == CategoryAdversarial {
			adversarialTotal++
			if out.Detected {
				adversarialDetected++
			}
		}
	}

	if report.TotalCitations > 0 {
		report.HallucinationRate = float64(report.HallucinatedCitations) / float64(report.TotalCitations)
		report.EvidenceCoverage = float64(report.ValidCitations) / float64(report.TotalCitations)
	}

	report.Checks = []Check{
		{
			Name:      "hallucination_rate",
			Value:     report.HallucinationRate,
			Threshold: cfg.HallucinationRateMax,
			Passed:    report.HallucinationRate <= cfg.HallucinationRateMax,
			Formula:   fmt.Sprintf("%d / %d <= %.4f", report.HallucinatedCitations, report.TotalCitations, cfg.HallucinationRateMax),
		},
		{
			Name:      "evidence_coverage",
			Value:     report.EvidenceCoverage,
			Threshold: cfg.EvidenceCoverageMin,
			Passed:    report.EvidenceCoverage >= cfg.EvidenceCoverageMin,
			Formula:   fmt.Sprintf("%d / %d >= %.4f", report.ValidCitations, report.TotalCitations, cfg.EvidenceCoverageMin),
		},
		normalPassCheck(report.Categories[CategoryNormal], cfg.NormalPassRateMin),
		adversarialCheck(adversarialDetected, adversarialTotal, cfg.AdversarialDetectionMin),
	}

	report.Passed = true
	for _, check := range report.Checks {
		if !check.Passed {
			report.Passed = false
		}
	}
	return report
}

func normalPassCheck(stats CategoryStats, min float64) Check {
	rate := 1.0
	if stats.Total > 0 {
		rate = float64(stats.Passed) / float64(stats.Total)
	}
	return Check{
		Name:      "normal_pass_rate",
		Value:     rate,
		Threshold: min,
		Passed:    rate >= min,
		Formula:   fmt.Sprintf("%d / %d >= %.4f", stats.Passed, stats.Total, min),
	}
}

func adversarialCheck(detected, total int, min float64) Check {
	rate := 1.0
	if total > 0 {
		rate = float64(detected) / float64(total)
	}
	return Check{
		Name:      "adversarial_detection_rate",
		Value:     rate,
		Threshold: min,
		Passed:    rate >= min,
		Formula:   fmt.Sprintf("%d / %d >= %.4f", detected, total, min),
	}
}
