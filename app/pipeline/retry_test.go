package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/SuperrNaruto/you2down/app/fetcher"
)

func TestGovernorExponentialSchedule(t *testing.T) {
	governor := Governor{
		MaxAttempts: 3,
		BaseDelay:   60 * time.Second,
		MaxDelay:    time.Hour,
	}
	transient := errors.New("connection reset")

	decision := governor.Decide(0, transient)
	if decision.GiveUp {
		t.Fatal("Expected first failure to retry")
	}
	if decision.Delay != 60*time.Second {
		t.Errorf("Expected 60s delay, got %v", decision.Delay)
	}

	decision = governor.Decide(1, transient)
	if decision.GiveUp {
		t.Fatal("Expected second failure to retry")
	}
	if decision.Delay != 120*time.Second {
		t.Errorf("Expected 120s delay, got %v", decision.Delay)
	}

	decision = governor.Decide(2, transient)
	if !decision.GiveUp {
		t.Error("Expected third failure to give up")
	}
}

func TestGovernorDelayCap(t *testing.T) {
	governor := Governor{
		MaxAttempts: 10,
		BaseDelay:   time.Minute,
		MaxDelay:    5 * time.Minute,
	}

	decision := governor.Decide(6, errors.New("timeout"))
	if decision.GiveUp {
		t.Fatal("Expected retry")
	}
	if decision.Delay != 5*time.Minute {
		t.Errorf("Expected delay capped at 5m, got %v", decision.Delay)
	}
}

func TestGovernorPermanentErrorsShortCircuit(t *testing.T) {
	governor := Governor{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	}

	permanentErrs := []error{
		fetcher.ErrNotFound,
		fetcher.ErrForbidden,
		fetcher.ErrSizeExceeded,
		ErrInvalidStrategy,
		fmt.Errorf("wrapped: %w", fetcher.ErrNotFound),
	}
	for _, err := range permanentErrs {
		if decision := governor.Decide(0, err); !decision.GiveUp {
			t.Errorf("Expected %v to give up immediately", err)
		}
	}

	// Rate limits stay retryable.
	if decision := governor.Decide(0, fetcher.ErrRateLimited); decision.GiveUp {
		t.Error("Expected rate limit to be retried")
	}
}
