package workflow

import (
	"testing"
	"time"

	"github.com/veritclaim/triage/internal/model"
)

func TestPolicyFromConfig_Defaults(t *testing.T) {
	p := PolicyFromConfig(model.RetryConfig{})
	if p.MaxAttempts != 3 {
		t.Errorf("default MaxAttempts = %d", p.MaxAttempts)
	}
	if p.BaseDelay != time.Second {
		t.Errorf("default BaseDelay = %s", p.BaseDelay)
	}
}

func TestRetryPolicy_DelayGrowsExponentially(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond}

	if d := p.Delay(0); d != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %s", d)
	}
	if d := p.Delay(1); d != 200*time.Millisecond {
		t.Errorf("attempt 1 delay = %s", d)
	}
	if d := p.Delay(2); d != 400*time.Millisecond {
		t.Errorf("attempt 2 delay = %s", d)
	}
}

func TestRetryPolicy_JitterIsBounded(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, JitterBound: 100 * time.Millisecond}

	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		if d < time.Second || d >= time.Second+100*time.Millisecond {
			t.Fatalf("jittered delay %s outside [1s, 1.1s)", d)
		}
	}
}
