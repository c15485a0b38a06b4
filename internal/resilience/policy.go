package resilience

import (
	"context"
	"math"
	"time"
)

// Policy controls how the executor spaces and bounds retries.
type Policy struct {
	BaseDelay      time.Duration // wait before the first retry
	Multiplier     float64       // growth factor per retry, must be > 1
	AttemptTimeout time.Duration // deadline applied to every attempt, 0 disables
	MaxRetries     int           // ceiling on any caller-chosen retry count
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      200 * time.Millisecond,
		Multiplier:     2,
		AttemptTimeout: 5 * time.Second,
		MaxRetries:     5,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Delay returns the wait before retry n (1-based). Each delay is strictly
// longer than the one before it.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1)))
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
