// Package workflow drives each denied claim through the triage pipeline:
// extraction, retrieval, reasoning, drafting, citation verification, the
// human gate, and execution. Each claim is one independent unit of work;
// the only shared state is the read-only policy snapshot and the audit
// ledger.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/agent"
	"github.com/veritclaim/triage/internal/audit"
	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/phi"
	"github.com/veritclaim/triage/internal/store"
	"github.com/veritclaim/triage/internal/verify"
)

// ErrDetached is returned from a ReviewQueue's Await to leave the run
// suspended at the human gate instead of blocking for a verdict. The run
// persists as waiting and resumes via Resume.
var ErrDetached = errors.New("run detached at human review")

// Collaborators is the full external capability set the orchestrator
// sequences.
type Collaborators struct {
	Extractor agent.Extractor
	Retriever agent.Retriever
	Reasoner  agent.Reasoner
	Drafter   agent.Drafter
	Executor  agent.Executor
	Reviews   agent.ReviewQueue
}

// Orchestrator is the workflow state machine for claim triage.
type Orchestrator struct {
	agents   Collaborators
	verifier *verify.Verifier
	snapshot *index.Snapshot
	ledger   *audit.Ledger
	runs     *store.RunStore
	cfg      model.WorkflowConfig
	retry    RetryPolicy

	sleep func(time.Duration)  // injectable for tests
	warnf func(string, ...any) // operator-facing progress, may be nil
}

// New creates an orchestrator.
func New(agents Collaborators, verifier *verify.Verifier, snapshot *index.Snapshot, ledger *audit.Ledger, runs *store.RunStore, cfg model.WorkflowConfig) *Orchestrator {
	return &Orchestrator{
		agents:   agents,
		verifier: verifier,
		snapshot: snapshot,
		ledger:   ledger,
		runs:     runs,
		cfg:      cfg,
		retry:    PolicyFromConfig(cfg.Retry),
		sleep:    time.Sleep,
		warnf:    func(string, ...any) {},
	}
}

// SetProgressFunc installs an operator-facing progress logger.
func (o *Orchestrator) SetProgressFunc(f func(string, ...any)) {
	if f != nil {
		o.warnf = f
	}
}

// Run drives one denial document to a terminal state. The returned run
// always carries a human-readable rationale and its full audit history is
// in the ledger; escalated and failed claims are never silently dropped.
func (o *Orchestrator) Run(ctx context.Context, documentBytes []byte) (*model.WorkflowRun, error) {
	run := &model.WorkflowRun{
		Stage:           model.StageIngested,
		Status:          model.StatusRunning,
		SnapshotVersion: o.snapshot.Version(),
		StartedAt:       time.Now().UTC(),
	}

	denial, err := o.runExtract(ctx, run, documentBytes)
	if err != nil {
		return run, o.routeError(run, "extract", err)
	}

	if cancelled, err := o.checkCancelled(ctx, run); cancelled || err != nil {
		return run, err
	}

	spans, err := o.runRetrieve(ctx, run, denial)
	if err != nil {
		return run, o.routeError(run, "retrieve", err)
	}

	if cancelled, err := o.checkCancelled(ctx, run); cancelled || err != nil {
		return run, err
	}

	decision, err := o.runReason(ctx, run, denial, spans)
	if err != nil {
		return run, o.routeError(run, "reason", err)
	}
	if run.Status.Terminal() {
		// NoAppeal and Escalate outcomes terminate before drafting.
		return run, nil
	}

	if cancelled, err := o.checkCancelled(ctx, run); cancelled || err != nil {
		return run, err
	}

	draft, err := o.runDraftAndVerify(ctx, run, decision, decision.Citations)
	if err != nil {
		return run, o.routeError(run, "verify", err)
	}

	if cancelled, err := o.checkCancelled(ctx, run); cancelled || err != nil {
		return run, err
	}

	if err := o.runReviewLoop(ctx, run, decision, draft); err != nil {
		return run, o.routeError(run, "human_review", err)
	}
	return run, nil
}

// Resume re-enters a run suspended at the human gate.
func (o *Orchestrator) Resume(ctx context.Context, claimID uuid.UUID) (*model.WorkflowRun, error) {
	run, err := o.runs.Get(claimID)
	if err != nil {
		return nil, err
	}
	if run.Status != model.StatusWaiting {
		return run, fmt.Errorf("run %s is %s, not awaiting review", claimID, run.Status)
	}
	if run.Decision == nil || run.Draft == nil {
		return run, fmt.Errorf("run %s has no decision or draft to resume with", claimID)
	}
	if err := o.runReviewLoop(ctx, run, run.Decision, run.Draft); err != nil {
		return run, o.routeError(run, "human_review", err)
	}
	return run, nil
}

// ---- stages ----

func (o *Orchestrator) runExtract(ctx context.Context, run *model.WorkflowRun, documentBytes []byte) (*model.ClaimDenial, error) {
	var denial *model.ClaimDenial
	err := o.callStage(ctx, string(model.StageExtracted), func(stageCtx context.Context) error {
		var callErr error
		denial, callErr = o.agents.Extractor.Extract(stageCtx, documentBytes)
		return callErr
	})
	if err != nil {
		// No claim identity was extracted; key the failed run by a fresh
		// id so the failure is still audited, not dropped.
		run.ClaimID = uuid.New()
		return nil, err
	}

	run.ClaimID = denial.ClaimID
	run.Denial = denial

	if err := o.append(run, audit.Entry{
		Stage:         string(model.StageIngested),
		EventType:     model.EventDocumentIngested,
		Actor:         model.ActorSystem,
		Success:       true,
		Description:   fmt.Sprintf("ingested denial document (%d bytes)", len(documentBytes)),
		PayloadDigest: phi.DigestPayload(documentBytes),
	}); err != nil {
		return nil, err
	}

	if err := o.advance(run, model.StageExtracted, audit.Entry{
		EventType:     model.EventClaimExtracted,
		Actor:         model.ActorSystem,
		PHIAccessed:   true,
		Success:       true,
		Description:   fmt.Sprintf("extracted claim %s (%s), confidence %.2f", denial.ClaimNumber, denial.Reason, denial.Confidence),
		PayloadDigest: digestJSON(denial),
	}); err != nil {
		return nil, err
	}

	// Guards gating automatic progression.
	if denial.Confidence < o.cfg.ConfidenceFloor {
		return nil, fmt.Errorf("confidence %.2f below floor %.2f: %w",
			denial.Confidence, o.cfg.ConfidenceFloor, model.ErrExtractionLowConfidence)
	}
	if denial.MemberIDOnFile != "" && !phi.Consistent(denial.MemberID, denial.MemberIDOnFile) {
		return nil, fmt.Errorf("member id does not match roster record: %w", model.ErrPHIInconsistency)
	}

	return denial, nil
}

func (o *Orchestrator) runRetrieve(ctx context.Context, run *model.WorkflowRun, denial *model.ClaimDenial) ([]model.SourceSpan, error) {
	query := fmt.Sprintf("%s: %s", denial.Reason, denial.ReasonText)

	var hits []agent.RankedSpan
	err := o.callStage(ctx, string(model.StageRetrieved), func(stageCtx context.Context) error {
		var callErr error
		hits, callErr = o.agents.Retriever.Search(stageCtx, query, o.cfg.RetrieveTopK)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("no policy text for %q: %w", denial.Reason, model.ErrRetrievalEmpty)
	}

	spans := make([]model.SourceSpan, len(hits))
	for i, h := range hits {
		spans[i] = h.Span
	}
	run.Spans = spans

	if err := o.advance(run, model.StageRetrieved, audit.Entry{
		EventType:   model.EventPolicyRetrieved,
		Actor:       model.ActorSystem,
		Success:     true,
		Description: fmt.Sprintf("retrieved %d policy spans (top relevance %.2f)", len(hits), hits[0].Relevance),
	}); err != nil {
		return nil, err
	}
	return spans, nil
}

func (o *Orchestrator) runReason(ctx context.Context, run *model.WorkflowRun, denial *model.ClaimDenial, spans []model.SourceSpan) (*model.Decision, error) {
	var decision *model.Decision
	err := o.callStage(ctx, string(model.StageReasoned), func(stageCtx context.Context) error {
		var callErr error
		decision, callErr = o.agents.Reasoner.Reason(stageCtx, *denial, spans)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	run.Decision = decision
	if err := o.advance(run, model.StageReasoned, audit.Entry{
		EventType:     model.EventDecisionMade,
		Actor:         model.ActorSystem,
		Success:       true,
		Description:   fmt.Sprintf("decision %s (confidence %.2f): %s", decision.Outcome, decision.Confidence, decision.Rationale),
		PayloadDigest: digestJSON(decision),
	}); err != nil {
		return nil, err
	}

	switch decision.Outcome {
	case model.OutcomeNoAppeal:
		o.finish(run, model.StatusRejected, "denial stands: "+decision.Rationale)
	case model.OutcomeEscalate:
		if err := o.escalate(run, decision.EscalationReason+": "+decision.Rationale); err != nil {
			return nil, err
		}
	}
	return decision, nil
}

// runDraftAndVerify drafts the appeal and verifies its citation set,
// re-drafting against only the grounded citations up to the configured
// budget when the hallucination gate trips.
func (o *Orchestrator) runDraftAndVerify(ctx context.Context, run *model.WorkflowRun, decision *model.Decision, citations []model.Citation) (*model.AppealDraft, error) {
	for {
		draft, err := o.draftOnce(ctx, run, decision, citations)
		if err != nil {
			return nil, err
		}

		verified, metrics, err := o.verifyOnce(ctx, run, draft)
		if err != nil {
			return nil, err
		}
		draft.Citations = verified
		run.Draft = draft
		run.Metrics = &metrics

		// An appealing decision must carry at least one grounded citation
		// before anything becomes human-visible.
		passes := metrics.HallucinationRate <= o.cfg.HallucinationGate && metrics.ValidCitations > 0
		if passes {
			return draft, nil
		}

		valid := validOnly(verified)
		if run.Redrafts >= o.cfg.MaxRedrafts || len(valid) == 0 {
			return nil, fmt.Errorf("hallucination rate %.2f%% over gate %.2f%% after %d redrafts: %w",
				metrics.HallucinationRate*100, o.cfg.HallucinationGate*100, run.Redrafts, model.ErrHallucinatedCitation)
		}

		o.warnf("re-drafting claim %s: %d of %d citations failed verification",
			run.ClaimID, metrics.HallucinatedCitations, metrics.TotalCitations)
		run.Redrafts++
		citations = valid
	}
}

func (o *Orchestrator) draftOnce(ctx context.Context, run *model.WorkflowRun, decision *model.Decision, citations []model.Citation) (*model.AppealDraft, error) {
	var draft *model.AppealDraft
	err := o.callStage(ctx, string(model.StageDrafted), func(stageCtx context.Context) error {
		var callErr error
		draft, callErr = o.agents.Drafter.Draft(stageCtx, *decision, citations)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	draft.Revision = run.Redrafts

	if err := o.advance(run, model.StageDrafted, audit.Entry{
		EventType:     model.EventAppealDrafted,
		Actor:         model.ActorSystem,
		PHIAccessed:   true,
		Success:       true,
		Description:   fmt.Sprintf("drafted appeal revision %d with %d citations", draft.Revision, len(citations)),
		PayloadDigest: phi.DigestPayload([]byte(draft.Body)),
	}); err != nil {
		return nil, err
	}
	return draft, nil
}

func (o *Orchestrator) verifyOnce(ctx context.Context, run *model.WorkflowRun, draft *model.AppealDraft) ([]model.Citation, model.VerificationMetrics, error) {
	var (
		verified []model.Citation
		metrics  model.VerificationMetrics
	)
	err := o.callStage(ctx, string(model.StageVerified), func(stageCtx context.Context) error {
		var callErr error
		verified, metrics, callErr = o.verifier.Verify(stageCtx, draft.Citations, o.snapshot)
		return callErr
	})
	if err != nil {
		return nil, metrics, err
	}

	for _, c := range verified {
		if c.Result != nil && c.Result.HallucinationDetected {
			if appendErr := o.append(run, audit.Entry{
				Stage:       string(model.StageVerified),
				EventType:   model.EventHallucinationDetected,
				Actor:       model.ActorSystem,
				Success:     false,
				Description: fmt.Sprintf("citation %s: %s", c.CitationID, c.Result.FailureReason),
			}); appendErr != nil {
				return nil, metrics, appendErr
			}
		}
	}

	if err := o.advance(run, model.StageVerified, audit.Entry{
		EventType: model.EventCitationVerified,
		Actor:     model.ActorSystem,
		Success:   metrics.HallucinatedCitations == 0,
		Description: fmt.Sprintf("verified %d/%d citations, hallucination rate %.2f%%, coverage %.2f%%",
			metrics.ValidCitations, metrics.TotalCitations, metrics.HallucinationRate*100, metrics.EvidenceCoverage*100),
		PayloadDigest: digestJSON(metrics),
	}); err != nil {
		return nil, metrics, err
	}
	return verified, metrics, nil
}

// runReviewLoop suspends at the human gate until a signal arrives. Approve
// proceeds to execution; reject terminates; modify re-enters drafting with
// the reviewer's payload and verifies again before the next review pass.
func (o *Orchestrator) runReviewLoop(ctx context.Context, run *model.WorkflowRun, decision *model.Decision, draft *model.AppealDraft) error {
	for {
		run.Stage = model.StageHumanReview
		run.Status = model.StatusWaiting
		if err := o.append(run, audit.Entry{
			Stage:       string(model.StageHumanReview),
			EventType:   model.EventHumanReviewRequested,
			Actor:       model.ActorSystem,
			Success:     true,
			Description: fmt.Sprintf("appeal revision %d awaiting human review", draft.Revision),
		}); err != nil {
			return err
		}
		if err := o.save(run); err != nil {
			return err
		}

		// Observational only: the gate never times out on its own.
		var slaTimer *time.Timer
		if o.cfg.StaleReviewSLA > 0 {
			claimID := run.ClaimID
			slaTimer = time.AfterFunc(o.cfg.StaleReviewSLA, func() {
				o.warnf("claim %s has been waiting for review beyond the %s SLA", claimID, o.cfg.StaleReviewSLA)
			})
		}

		signal, err := o.agents.Reviews.Await(ctx, run.ClaimID)
		if slaTimer != nil {
			slaTimer.Stop()
		}
		if err != nil {
			return err
		}

		run.Status = model.StatusRunning
		switch signal.Verdict {
		case model.ReviewApprove:
			if err := o.append(run, audit.Entry{
				Stage:       string(model.StageHumanReview),
				EventType:   model.EventHumanApproved,
				Actor:       model.ActorHuman,
				Success:     true,
				Description: fmt.Sprintf("approved by %s: %s", signal.Reviewer, signal.Notes),
			}); err != nil {
				return err
			}
			return o.runExecute(ctx, run, draft)

		case model.ReviewReject:
			if err := o.append(run, audit.Entry{
				Stage:       string(model.StageHumanReview),
				EventType:   model.EventHumanRejected,
				Actor:       model.ActorHuman,
				Success:     true,
				Description: fmt.Sprintf("rejected by %s: %s", signal.Reviewer, signal.Notes),
			}); err != nil {
				return err
			}
			o.finish(run, model.StatusRejected, "rejected in human review: "+signal.Notes)
			return nil

		case model.ReviewModify:
			if err := o.append(run, audit.Entry{
				Stage:       string(model.StageHumanReview),
				EventType:   model.EventHumanModified,
				Actor:       model.ActorHuman,
				PHIAccessed: true,
				Success:     true,
				Description: fmt.Sprintf("modified by %s, re-verifying", signal.Reviewer),
			}); err != nil {
				return err
			}
			if signal.ModifyBody != "" {
				draft.Body = signal.ModifyBody
			}
			run.Redrafts++
			draft.Revision = run.Redrafts

			// Modification triggers re-verification before the next pass.
			verified, metrics, err := o.verifyOnce(ctx, run, draft)
			if err != nil {
				return err
			}
			draft.Citations = verified
			run.Draft = draft
			run.Metrics = &metrics
			if metrics.ValidCitations == 0 {
				return fmt.Errorf("modified appeal has no grounded citations: %w", model.ErrHallucinatedCitation)
			}

		default:
			return fmt.Errorf("unknown review verdict %q: %w", signal.Verdict, model.ErrEscalationRequired)
		}
	}
}

func (o *Orchestrator) runExecute(ctx context.Context, run *model.WorkflowRun, draft *model.AppealDraft) error {
	var result *model.ExecutionResult
	err := o.callStage(ctx, string(model.StageExecuted), func(stageCtx context.Context) error {
		var callErr error
		result, callErr = o.agents.Executor.Execute(stageCtx, *draft)
		return callErr
	})
	if err != nil {
		return err
	}

	run.Execution = result
	if err := o.advance(run, model.StageExecuted, audit.Entry{
		EventType:     model.EventAppealSubmitted,
		Actor:         model.ActorSystem,
		Success:       result.Submitted,
		Description:   fmt.Sprintf("appeal submitted, reference %s", result.Reference),
		PayloadDigest: digestJSON(result),
	}); err != nil {
		return err
	}

	o.finish(run, model.StatusExecuted, "appeal submitted under reference "+result.Reference)
	return nil
}

// ---- plumbing ----

// callStage invokes one collaborator call under the stage timeout,
// retrying transient failures within the count-based budget. Domain errors
// pass through untouched for routing.
func (o *Orchestrator) callStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < o.retry.MaxAttempts; attempt++ {
		stageCtx := ctx
		var cancel context.CancelFunc
		if o.cfg.StageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		}
		err = fn(stageCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("stage %s: %w: %v", stage, model.ErrExternalServiceTimeout, err)
		}
		if !model.Retryable(err) {
			return err
		}
		if attempt < o.retry.MaxAttempts-1 {
			o.warnf("stage %s attempt %d failed, retrying: %v", stage, attempt+1, err)
			o.sleep(o.retry.Delay(attempt))
		}
	}
	return err
}

// routeError maps a stage error to the run's terminal state: fatal audit
// failures halt, domain and exhausted-transient errors escalate, anything
// else fails the run. Terminal runs keep the original error for callers.
func (o *Orchestrator) routeError(run *model.WorkflowRun, stage string, err error) error {
	if run.Status.Terminal() {
		return err
	}
	if errors.Is(err, ErrDetached) {
		// Already persisted as waiting; the claim resumes via Resume.
		return nil
	}
	run.LastError = err.Error()

	switch {
	case model.Fatal(err):
		run.Status = model.StatusFailed
		run.Rationale = "run halted: audit trail could not be written"
		run.CompletedAt = time.Now().UTC()
		// Best effort: the ledger is already failing.
		_ = o.save(run)
		return err

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.cancel(run, stage)
		return err

	case model.EscalatesImmediately(err) || model.Retryable(err) ||
		errors.Is(err, model.ErrRetrievalEmpty) || errors.Is(err, model.ErrHallucinatedCitation):
		if escErr := o.escalate(run, err.Error()); escErr != nil {
			return escErr
		}
		return err

	default:
		if appendErr := o.append(run, audit.Entry{
			Stage:        stage,
			EventType:    model.EventSystemError,
			Actor:        model.ActorSystem,
			Success:      false,
			Description:  "unrecoverable stage error",
			ErrorMessage: err.Error(),
		}); appendErr != nil {
			return appendErr
		}
		o.finish(run, model.StatusFailed, "stage "+stage+" failed: "+err.Error())
		return err
	}
}

// checkCancelled performs the cooperative cancellation check at a stage
// boundary; it never preempts an in-flight call.
func (o *Orchestrator) checkCancelled(ctx context.Context, run *model.WorkflowRun) (bool, error) {
	if ctx.Err() == nil {
		return false, nil
	}
	o.cancel(run, string(run.Stage))
	return true, ctx.Err()
}

func (o *Orchestrator) cancel(run *model.WorkflowRun, stage string) {
	if appendErr := o.append(run, audit.Entry{
		Stage:       stage,
		EventType:   model.EventRunCancelled,
		Actor:       model.ActorSystem,
		Success:     false,
		Description: "run cancelled at stage boundary",
	}); appendErr != nil {
		run.Status = model.StatusFailed
		run.Rationale = "run halted: audit trail could not be written"
		_ = o.save(run)
		return
	}
	o.finish(run, model.StatusCancelled, "cancelled before stage "+stage+" completed")
}

func (o *Orchestrator) escalate(run *model.WorkflowRun, reason string) error {
	if err := o.append(run, audit.Entry{
		Stage:       string(run.Stage),
		EventType:   model.EventRunEscalated,
		Actor:       model.ActorSystem,
		Success:     false,
		Description: reason,
	}); err != nil {
		return err
	}
	o.finish(run, model.StatusEscalated, "escalated for human handling: "+reason)
	return nil
}

// finish marks the run terminal and persists it.
func (o *Orchestrator) finish(run *model.WorkflowRun, status model.Status, rationale string) {
	run.Status = status
	run.Rationale = rationale
	run.CompletedAt = time.Now().UTC()
	if err := o.save(run); err != nil {
		o.warnf("persist terminal run %s: %v", run.ClaimID, err)
	}
}

// append durably writes an audit event. The write completes before the
// stage is acknowledged; failure is fatal for the claim's progression.
func (o *Orchestrator) append(run *model.WorkflowRun, entry audit.Entry) error {
	_, err := o.ledger.Append(run.ClaimID, entry)
	return err
}

// advance appends the stage's audit event, then moves and persists the run.
// A crash between the collaborator call and the audit write leaves the run
// at its previous stage, safely retryable.
func (o *Orchestrator) advance(run *model.WorkflowRun, stage model.Stage, entry audit.Entry) error {
	entry.Stage = string(stage)
	if err := o.append(run, entry); err != nil {
		return err
	}
	run.Stage = stage
	return o.save(run)
}

func (o *Orchestrator) save(run *model.WorkflowRun) error {
	run.UpdatedAt = time.Now().UTC()
	return o.runs.Save(run)
}

// validOnly filters a verified set down to the grounded citations.
func validOnly(citations []model.Citation) []model.Citation {
	var out []model.Citation
	for _, c := range citations {
		if c.Result != nil && c.Result.IsValid {
			out = append(out, c)
		}
	}
	return out
}

func digestJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return phi.DigestPayload(data)
}
