package workflow

import (
	"math/rand"
	"time"

	"github.com/veritclaim/triage/internal/model"
)

// RetryPolicy bounds transient-failure retries for one stage invocation.
// Budgets are count-based, never time-based, so exhaustion is
// deterministic and testable. Jitter affects only the delay between
// attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	JitterBound time.Duration
}

// PolicyFromConfig builds a retry policy, applying defaults for
// unset fields.
func PolicyFromConfig(cfg model.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		JitterBound: cfg.JitterBound,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

// Delay returns the backoff before retrying after the given zero-based
// attempt: exponential in the attempt number plus bounded jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if p.JitterBound > 0 {
		delay += time.Duration(rand.Int63n(int64(p.JitterBound)))
	}
	return delay
}
