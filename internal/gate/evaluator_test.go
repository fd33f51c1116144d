package gate

import (
	"testing"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

func gateConfig() model.GateConfig {
	return model.GateConfig{
		HallucinationRateMax:    0.02,
		EvidenceCoverageMin:     0.85,
		NormalPassRateMin:       0.95,
		AdversarialDetectionMin: 1.0,
	}
}

func outcome(cat Category, passed, detected bool, total, valid, hallucinated int) RunOutcome {
	return RunOutcome{
		ClaimID:  uuid.New(),
		Category: cat,
		Passed:   passed,
		Detected: detected,
		Metrics: model.VerificationMetrics{
			TotalCitations:        total,
			ValidCitations:        valid,
			HallucinatedCitations: hallucinated,
		},
	}
}

func TestEvaluate_PassingBatch(t *testing.T) {
	outcomes := []RunOutcome{
		outcome(CategoryNormal, true, false, 50, 50, 0),
		outcome(CategoryNormal, true, false, 50, 50, 0),
		outcome(CategoryAdversarial, true, true, 10, 9, 1),
	}

	report := Evaluate(outcomes, gateConfig())
	if !report.Passed {
		t.Fatalf("expected pass, checks: %+v", report.Checks)
	}
	if report.TotalCitations != 110 || report.HallucinatedCitations != 1 {
		t.Errorf("unexpected totals %+v", report)
	}
}

func TestEvaluate_ThreePercentHallucinationFailsTwoPercentGate(t *testing.T) {
	// 100 citations with 3 hallucinated is a 3% rate against a 2% gate.
	outcomes := []RunOutcome{
		outcome(CategoryNormal, true, false, 100, 97, 3),
	}

	report := Evaluate(outcomes, gateConfig())
	if report.Passed {
		t.Fatal("3% hallucination rate must fail the 2% gate")
	}
	if report.HallucinationRate != 0.03 {
		t.Errorf("hallucination rate = %.4f", report.HallucinationRate)
	}

	var check *Check
	for i := range report.Checks {
		if report.Checks[i].Name == "hallucination_rate" {
			check = &report.Checks[i]
		}
	}
	if check == nil {
		t.Fatal("no hallucination_rate check in report")
	}
	if check.Passed {
		t.Error("hallucination_rate check should fail")
	}
	if check.Formula == "" {
		t.Error("check should carry its transparent formula")
	}
}

func TestEvaluate_LowCoverageFails(t *testing.T) {
	outcomes := []RunOutcome{
		outcome(CategoryNormal, true, false, 100, 80, 0), // 80% coverage, 20 unscored
	}

	report := Evaluate(outcomes, gateConfig())
	if report.Passed {
		t.Fatal("80% coverage must fail the 85% floor")
	}
}

func TestEvaluate_MissedAdversarialDetectionFails(t *testing.T) {
	outcomes := []RunOutcome{
		outcome(CategoryNormal, true, false, 50, 50, 0),
		outcome(CategoryAdversarial, true, true, 10, 9, 1),
		outcome(CategoryAdversarial, false, false, 10, 10, 0), // planted hallucination slipped through
	}

	report := Evaluate(outcomes, gateConfig())
	if report.Passed {
		t.Fatal("a missed adversarial case must fail the gate")
	}

	for _, check := range report.Checks {
		if check.Name == "adversarial_detection_rate" {
			if check.Value != 0.5 {
				t.Errorf("detection rate = %.2f, want 0.5", check.Value)
			}
			if check.Passed {
				t.Error("detection check should fail below 100%")
			}
		}
	}
}

func TestEvaluate_NormalPassRate(t *testing.T) {
	var outcomes []RunOutcome
	for i := 0; i < 19; i++ {
		outcomes = append(outcomes, outcome(CategoryNormal, true, false, 10, 10, 0))
	}
	outcomes = append(outcomes, outcome(CategoryNormal, false, false, 10, 10, 0))

	// 19/20 = 95% meets the floor exactly.
	report := Evaluate(outcomes, gateConfig())
	for _, check := range report.Checks {
		if check.Name == "normal_pass_rate" && !check.Passed {
			t.Errorf("95%% pass rate should meet the 95%% floor: %+v", check)
		}
	}

	// One more failure drops below it.
	outcomes = append(outcomes, outcome(CategoryNormal, false, false, 10, 10, 0))
	report = Evaluate(outcomes, gateConfig())
	if report.Passed {
		t.Error("pass rate below 95% must fail the gate")
	}
}

func TestEvaluate_EmptyBatchFails(t *testing.T) {
	// No citations means zero evidence coverage, which fails the floor.
	// An empty regression corpus must never green-light a deployment.
	report := Evaluate(nil, gateConfig())
	if report.Passed {
		t.Error("an empty batch must not pass the gate")
	}
	if report.TotalCitations != 0 {
		t.Errorf("unexpected totals %+v", report)
	}
}

func TestEvaluate_CategoryStats(t *testing.T) {
	outcomes := []RunOutcome{
		outcome(CategoryNormal, true, false, 10, 10, 0),
		outcome(CategoryNormal, false, false, 10, 10, 0),
		outcome(CategoryEdgeCase, true, false, 5, 5, 0),
	}

	report := Evaluate(outcomes, gateConfig())
	normal := report.Categories[CategoryNormal]
	if normal.Total != 2 || normal.Passed != 1 || normal.Failed != 1 {
		t.Errorf("normal stats %+v", normal)
	}
	edge := report.Categories[CategoryEdgeCase]
	if edge.Total != 1 || edge.Passed != 1 {
		t.Errorf("edge stats %+v", edge)
	}
}
