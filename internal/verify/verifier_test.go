package verify

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/similarity"
)

// scriptedProvider returns fixed scores keyed by claim text, or an error.
type scriptedProvider struct {
	scores map[string]float64
	errFor map[string]error
	calls  int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) Score(ctx context.Context, a, b, v string) (float64, error) {
	p.calls++
	if err, ok := p.errFor[a]; ok {
		return 0, err
	}
	if score, ok := p.scores[a]; ok {
		return score, nil
	}
	return 0, fmt.Errorf("no scripted score for %q", a)
}

const policyText = "Prior authorization is not required for emergency services rendered in network facilities under this plan."

func verifierFixture() (*Verifier, *index.Snapshot, uuid.UUID, *scriptedProvider) {
	doc := model.PolicyDocument{
		DocumentID: uuid.New(),
		Name:       "PA Policy",
		Type:       "policy",
		Text:       policyText,
	}
	snap := index.NewSnapshot("snap-1", []model.PolicyDocument{doc}, time.Minute)
	provider := &scriptedProvider{scores: map[string]float64{}, errFor: map[string]error{}}
	v := NewVerifier(provider, model.VerificationConfig{SimilarityThreshold: 0.85, MinSpanLength: 10})
	return v, snap, doc.DocumentID, provider
}

func citation(docID uuid.UUID, claimText string, start, end int) model.Citation {
	return model.Citation{
		CitationID: uuid.New(),
		ClaimText:  claimText,
		Category:   model.CategoryPolicy,
		Confidence: 0.9,
		Span:       model.SourceSpan{DocumentID: docID, StartByte: start, EndByte: end},
	}
}

func TestVerifier_ValidCitation(t *testing.T) {
	v, snap, docID, provider := verifierFixture()
	provider.scores["emergency services need no prior auth"] = 0.95

	out, metrics, err := v.Verify(context.Background(),
		[]model.Citation{citation(docID, "emergency services need no prior auth", 0, 50)}, snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	r := out[0].Result
	if r == nil {
		t.Fatal("no result attached")
	}
	if r.Status != model.VerificationValid || !r.IsValid {
		t.Errorf("expected valid, got %s", r.Status)
	}
	if !r.Resolved {
		t.Error("span should be resolved")
	}
	if metrics.ValidCitations != 1 || metrics.HallucinationRate != 0 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
}

func TestVerifier_BelowThresholdIsHallucinated(t *testing.T) {
	v, snap, docID, provider := verifierFixture()
	provider.scores["vague paraphrase"] = 0.60

	out, metrics, err := v.Verify(context.Background(),
		[]model.Citation{citation(docID, "vague paraphrase", 0, 50)}, snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	r := out[0].Result
	if r.Status != model.VerificationHallucinated || !r.HallucinationDetected {
		t.Errorf("expected hallucinated, got %s", r.Status)
	}
	if r.FailureReason == "" {
		t.Error("hallucinated citation should carry a failure reason")
	}
	if metrics.HallucinatedCitations != 1 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
}

func TestVerifier_UnresolvableSpanIsHallucinated(t *testing.T) {
	v, snap, docID, provider := verifierFixture()

	out, metrics, err := v.Verify(context.Background(),
		[]model.Citation{citation(docID, "cites past the end of the document", 0, len(policyText)+500)}, snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	r := out[0].Result
	if r.Status != model.VerificationHallucinated {
		t.Errorf("expected hallucinated, got %s", r.Status)
	}
	if metrics.HallucinatedCitations != 1 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
	if provider.calls != 0 {
		t.Errorf("unresolvable span must not reach the provider, got %d calls", provider.calls)
	}
}

func TestVerifier_StructuralDefectSkipsProvider(t *testing.T) {
	v, snap, docID, provider := verifierFixture()

	c := citation(docID, "", 0, 50) // empty claim text fails lint
	out, _, err := v.Verify(context.Background(), []model.Citation{c}, snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	r := out[0].Result
	if r == nil || r.Status != model.VerificationHallucinated {
		t.Fatalf("expected hallucinated result, got %+v", r)
	}
	if provider.calls != 0 {
		t.Errorf("structural defects must not spend provider calls, got %d", provider.calls)
	}
}

func TestVerifier_DeferredFailureIsAtomic(t *testing.T) {
	v, snap, docID, provider := verifierFixture()
	provider.scores["first grounded claim"] = 0.95
	provider.errFor["provider goes down here"] = errors.New("connection refused")

	citations := []model.Citation{
		citation(docID, "first grounded claim", 0, 50),
		citation(docID, "provider goes down here", 0, 40),
		citation(docID, "never reached", 0, 30),
	}

	out, metrics, err := v.Verify(context.Background(), citations, snap)
	if !errors.Is(err, model.ErrVerificationDeferred) {
		t.Fatalf("expected ErrVerificationDeferred, got %v", err)
	}

	if out[1].Result == nil || out[1].Result.Status != model.VerificationDeferred {
		t.Error("failing citation should be marked deferred")
	}
	if out[2].Result != nil {
		t.Error("citations after the failure must stay unscored")
	}
	if metrics.DeferredCitations != 1 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
}

func TestVerifier_Reproducible(t *testing.T) {
	v, snap, docID, provider := verifierFixture()
	v.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	provider.scores["claim one"] = 0.95
	provider.scores["claim two"] = 0.40

	citations := []model.Citation{
		citation(docID, "claim one", 0, 50),
		citation(docID, "claim two", 10, 60),
	}

	out1, m1, err := v.Verify(context.Background(), citations, snap)
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}
	out2, m2, err := v.Verify(context.Background(), citations, snap)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}

	if !reflect.DeepEqual(m1, m2) {
		t.Errorf("metrics differ between identical passes: %+v vs %+v", m1, m2)
	}
	for i := range out1 {
		if !reflect.DeepEqual(out1[i].Result, out2[i].Result) {
			t.Errorf("citation %d result differs between identical passes", i)
		}
	}
}

func TestVerifier_ShortSpanFails(t *testing.T) {
	v, snap, docID, provider := verifierFixture()

	out, _, err := v.Verify(context.Background(),
		[]model.Citation{citation(docID, "cites a tiny fragment", 0, 3)}, snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out[0].Result.Status != model.VerificationHallucinated {
		t.Errorf("span below minimum length should fail, got %s", out[0].Result.Status)
	}
	if provider.calls != 0 {
		t.Errorf("short span must not reach the provider, got %d calls", provider.calls)
	}
}

func TestAggregate(t *testing.T) {
	mk := func(status model.VerificationStatus) model.Citation {
		return model.Citation{
			CitationID: uuid.New(),
			Category:   model.CategoryPolicy,
			Result:     &model.VerificationResult{Status: status},
		}
	}

	citations := []model.Citation{
		mk(model.VerificationValid),
		mk(model.VerificationValid),
		mk(model.VerificationHallucinated),
		mk(model.VerificationDeferred),
	}

	m := Aggregate(citations)
	if m.TotalCitations != 4 || m.ValidCitations != 2 || m.HallucinatedCitations != 1 || m.DeferredCitations != 1 {
		t.Errorf("unexpected counts %+v", m)
	}
	if m.HallucinationRate != 0.25 {
		t.Errorf("hallucination rate = %.4f, want 0.25", m.HallucinationRate)
	}
	if m.EvidenceCoverage != 0.5 {
		t.Errorf("evidence coverage = %.4f, want 0.5", m.EvidenceCoverage)
	}
	if m.ByCategory[model.CategoryPolicy] != 4 {
		t.Errorf("category counts %+v", m.ByCategory)
	}
}

func TestVerifier_LexicalEndToEnd(t *testing.T) {
	doc := model.PolicyDocument{
		DocumentID: uuid.New(),
		Type:       "policy",
		Text:       policyText,
	}
	snap := index.NewSnapshot("snap-1", []model.PolicyDocument{doc}, time.Minute)
	v := NewVerifier(similarity.NewLexicalProvider(), model.VerificationConfig{})

	verbatim := citation(doc.DocumentID, policyText[:52], 0, 52)
	out, metrics, err := v.Verify(context.Background(), []model.Citation{verbatim}, snap)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out[0].Result.Status != model.VerificationValid {
		t.Errorf("verbatim quote should verify, got %s (%s)", out[0].Result.Status, out[0].Result.FailureReason)
	}
	if metrics.EvidenceCoverage != 1.0 {
		t.Errorf("coverage = %.2f", metrics.EvidenceCoverage)
	}
}
