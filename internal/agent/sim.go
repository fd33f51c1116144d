package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/extract"
	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/similarity"
)

// Sim is a deterministic collaborator set driven by a denial bundle and a
// policy snapshot. It stands in for the LLM-backed extractor, retriever,
// reasoner, drafter, and executor so pipeline behavior can be exercised
// offline and in tests.
type Sim struct {
	snapshot *index.Snapshot
	lexical  *similarity.LexicalProvider
	proposed []model.Citation // scripted citation set, overrides span citing
}

// NewSim creates the simulated collaborator set.
func NewSim(snapshot *index.Snapshot) *Sim {
	return &Sim{
		snapshot: snapshot,
		lexical:  similarity.NewLexicalProvider(),
	}
}

// WithProposed makes the reasoner propose the given citation set instead of
// citing retrieved spans. Used by bundles that script their own citations,
// including adversarial regression cases with unresolvable spans.
func (s *Sim) WithProposed(citations []model.Citation) *Sim {
	s.proposed = citations
	return s
}

// Extract parses the denial bundle bytes into a ClaimDenial. Input that is
// not a bundle is treated as a free-text denial letter and goes through
// heuristic extraction instead.
func (s *Sim) Extract(ctx context.Context, documentBytes []byte) (*model.ClaimDenial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bundle, err := ParseBundle(documentBytes)
	if err != nil {
		return extract.NewLetterExtractor().Extract(string(documentBytes))
	}
	return bundle.Denial()
}

// Search ranks paragraph spans of every indexed document by lexical
// overlap with the query.
func (s *Sim) Search(ctx context.Context, query string, topK int) ([]RankedSpan, error) {
	if topK <= 0 {
		topK = 10
	}

	var hits []RankedSpan
	for _, doc := range s.snapshot.Documents() {
		for _, span := range paragraphSpans(doc) {
			score, err := s.lexical.Score(ctx, query, span.ExtractedText, s.snapshot.Version())
			if err != nil {
				return nil, err
			}
			if score > 0 {
				hits = append(hits, RankedSpan{Span: span, Relevance: score})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		// Stable tie-break keeps retrieval deterministic across runs.
		if hits[i].Span.DocumentID != hits[j].Span.DocumentID {
			return hits[i].Span.DocumentID.String() < hits[j].Span.DocumentID.String()
		}
		return hits[i].Span.StartByte < hits[j].Span.StartByte
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Reason applies the denial-reason rules and proposes citations over the
// retrieved spans.
func (s *Sim) Reason(ctx context.Context, denial model.ClaimDenial, spans []model.SourceSpan) (*model.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision := &model.Decision{
		DecisionID:      uuid.New(),
		ClaimID:         denial.ClaimID,
		PolicyVersion:   s.snapshot.Version(),
		DecidedAt:       time.Now().UTC(),
	}

	if strings.Contains(strings.ToLower(denial.ReasonText), "contradict") {
		return nil, fmt.Errorf("reason about denial %s: %w", denial.ClaimNumber, model.ErrPolicyContradiction)
	}

	switch denial.Reason {
	case model.DenialDuplicateSubmission:
		decision.Outcome = model.OutcomeNoAppeal
		decision.Rationale = "Denial is consistent with duplicate-submission policy; the original claim remains payable and no appeal is warranted."
		decision.Confidence = 0.95
		return decision, nil

	case model.DenialEligibilityCutoff:
		if s.serviceDateOutsidePolicy(denial, spans) {
			return nil, fmt.Errorf("service date %s predates every applicable policy version: %w",
				denial.ServiceDate.Format("2006-01-02"), model.ErrTemporalInconsistency)
		}

	case model.DenialOther:
		decision.Outcome = model.OutcomeEscalate
		decision.Rationale = "Denial reason could not be mapped to a known category; requires human judgment."
		decision.EscalationReason = "uncategorized denial reason"
		decision.Confidence = 0.5
		return decision, nil
	}

	decision.Outcome = model.OutcomeAppeal
	decision.Rationale = fmt.Sprintf("Applicable policy text supports appealing the %s denial.", denial.Reason)
	decision.Confidence = 0.9
	if s.proposed != nil {
		decision.Citations = s.proposed
	} else {
		decision.Citations = citeSpans(spans)
	}
	return decision, nil
}

// Draft writes the appeal letter from the decision and verified citations.
func (s *Sim) Draft(ctx context.Context, decision model.Decision, verified []model.Citation) (*model.AppealDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Re: Appeal of claim %s\n\n", decision.ClaimID)
	fmt.Fprintf(&b, "%s\n\nSupporting policy citations:\n", decision.Rationale)
	for i, c := range verified {
		doc, _ := s.snapshot.Document(c.Span.DocumentID)
		fmt.Fprintf(&b, "  [%d] %s (bytes %d-%d): %q\n",
			i+1, doc.Name, c.Span.StartByte, c.Span.EndByte, c.ClaimText)
	}

	return &model.AppealDraft{
		DraftID:   uuid.New(),
		ClaimID:   decision.ClaimID,
		Body:      b.String(),
		Citations: verified,
		DraftedAt: time.Now().UTC(),
	}, nil
}

// Execute simulates appeal submission.
func (s *Sim) Execute(ctx context.Context, draft model.AppealDraft) (*model.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &model.ExecutionResult{
		ClaimID:    draft.ClaimID,
		Submitted:  true,
		Reference:  "SUB-" + strings.ToUpper(draft.ClaimID.String()[:8]),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// serviceDateOutsidePolicy reports whether the service date predates every
// policy the retrieved spans reference.
func (s *Sim) serviceDateOutsidePolicy(denial model.ClaimDenial, spans []model.SourceSpan) bool {
	if denial.ServiceDate.IsZero() {
		return false
	}
	covered := false
	for _, span := range spans {
		doc, ok := s.snapshot.Document(span.DocumentID)
		if !ok {
			continue
		}
		if doc.EffectiveDate.IsZero() || !denial.ServiceDate.Before(doc.EffectiveDate) {
			covered = true
		}
	}
	return len(spans) > 0 && !covered
}

// citeSpans turns retrieved spans into verbatim citations: the claim text
// is the span text itself, so grounding similarity is maximal by
// construction.
func citeSpans(spans []model.SourceSpan) []model.Citation {
	out := make([]model.Citation, 0, len(spans))
	for _, span := range spans {
		out = append(out, model.Citation{
			CitationID: uuid.New(),
			ClaimText:  span.ExtractedText,
			Span:       span,
			Category:   model.CategoryPolicy,
			Confidence: 0.9,
		})
	}
	return out
}

// paragraphSpans splits a document into paragraph-addressed byte spans.
func paragraphSpans(doc model.PolicyDocument) []model.SourceSpan {
	var spans []model.SourceSpan
	offset := 0
	for _, para := range strings.Split(doc.Text, "\n\n") {
		trimmed := strings.TrimSpace(para)
		if trimmed != "" {
			start := offset + strings.Index(para, trimmed)
			spans = append(spans, model.SourceSpan{
				DocumentID:    doc.DocumentID,
				StartByte:     start,
				EndByte:       start + len(trimmed),
				ExtractedText: trimmed,
			})
		}
		offset += len(para) + 2 // account for the separator
	}
	return spans
}

// ScriptedReviews resolves every Await immediately with a scripted signal,
// used for non-interactive single runs and the regression harness.
type ScriptedReviews struct {
	Signal model.ReviewSignal
}

// Await returns the scripted signal.
func (r *ScriptedReviews) Await(ctx context.Context, claimID uuid.UUID) (model.ReviewSignal, error) {
	if err := ctx.Err(); err != nil {
		return model.ReviewSignal{}, err
	}
	signal := r.Signal
	signal.ClaimID = claimID
	return signal, nil
}

// ChannelReviews delivers review signals through per-claim channels. The
// review surface calls Deliver when a human acts; Await suspends the
// claim's unit of work until then.
type ChannelReviews struct {
	mu    sync.Mutex
	chans map[uuid.UUID]chan model.ReviewSignal
}

// NewChannelReviews creates an empty review queue.
func NewChannelReviews() *ChannelReviews {
	return &ChannelReviews{chans: make(map[uuid.UUID]chan model.ReviewSignal)}
}

// Deliver routes a signal to the claim awaiting it. Buffered so a reviewer
// acting before the workflow reaches the gate is not lost.
func (r *ChannelReviews) Deliver(signal model.ReviewSignal) {
	r.channel(signal.ClaimID) <- signal
}

// Await blocks until a signal for the claim arrives or the context is
// cancelled. No implicit timeout: the human gate is an indefinite
// suspension point.
func (r *ChannelReviews) Await(ctx context.Context, claimID uuid.UUID) (model.ReviewSignal, error) {
	select {
	case signal := <-r.channel(claimID):
		return signal, nil
	case <-ctx.Done():
		return model.ReviewSignal{}, ctx.Err()
	}
}

func (r *ChannelReviews) channel(claimID uuid.UUID) chan model.ReviewSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.chans[claimID]
	if !ok {
		ch = make(chan model.ReviewSignal, 1)
		r.chans[claimID] = ch
	}
	return ch
}
