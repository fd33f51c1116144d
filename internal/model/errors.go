package model

import "errors"

// Error taxonomy for the triage core. Transient errors are retried within a
// bounded budget; domain-ambiguity errors escalate immediately; audit-write
// failure halts the run.
var (
	ErrExtractionLowConfidence = errors.New("extraction confidence below floor")
	ErrRetrievalEmpty          = errors.New("retrieval returned no policy spans")
	ErrHallucinatedCitation    = errors.New("citation set failed hallucination gate")
	ErrPHIInconsistency        = errors.New("phi identity mismatch between claim and documents")
	ErrTemporalInconsistency   = errors.New("temporal inconsistency between claim and policy")
	ErrPolicyContradiction     = errors.New("contradictory policy text")
	ErrExternalServiceTimeout  = errors.New("external service timeout")
	ErrVerificationDeferred    = errors.New("verification deferred: similarity provider unavailable")
	ErrEscalationRequired      = errors.New("escalation required")
	ErrAuditWriteFailure       = errors.New("audit ledger write failure")
)

// Retryable reports whether an error may be retried within the stage's
// retry budget.
func Retryable(err error) bool {
	return errors.Is(err, ErrExternalServiceTimeout) ||
		errors.Is(err, ErrVerificationDeferred)
}

// EscalatesImmediately reports whether an error routes to Escalated without
// consuming retry budget.
func EscalatesImmediately(err error) bool {
	return errors.Is(err, ErrPHIInconsistency) ||
		errors.Is(err, ErrTemporalInconsistency) ||
		errors.Is(err, ErrPolicyContradiction) ||
		errors.Is(err, ErrEscalationRequired) ||
		errors.Is(err, ErrExtractionLowConfidence)
}

// Fatal reports whether an error must halt the run outright. Auditability is
// a compliance requirement: a run may never advance un-audited.
func Fatal(err error) bool {
	return errors.Is(err, ErrAuditWriteFailure)
}
