package pipeline

import "time"

// Decision is the retry governor's verdict for a failed attempt.
type Decision struct {
	GiveUp bool
	Delay  time.Duration
}

// Governor decides whether a failed operation earns another attempt and
// how long to wait. retryCount is the number of attempts already failed
// before the current one.
type Governor struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (g Governor) Decide(retryCount int, err error) Decision {
	if permanent(err) {
		return Decision{GiveUp: true}
	}
	if retryCount >= g.MaxAttempts-1 {
		return Decision{GiveUp: true}
	}

	delay := g.BaseDelay << uint(retryCount)
	if delay <= 0 || (g.MaxDelay > 0 && delay > g.MaxDelay) {
		delay = g.MaxDelay
	}
	return Decision{Delay: delay}
}
