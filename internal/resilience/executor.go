// Package resilience runs remote calls with bounded, strictly sequential
// retries and a single error reporting path.
package resilience

import (
	"context"
	"errors"
	"time"

	"ridecore/internal/domain"
	"ridecore/internal/metrics"
)

// OnlineSignal is consulted before every retry. It never blocks the first attempt.
type OnlineSignal interface {
	IsOnline() bool
}

// Reporter receives every error the executor returns.
type Reporter interface {
	Report(ctx context.Context, op string, err error)
}

// Executor wraps remote operations with the configured retry policy.
type Executor struct {
	policy   Policy
	reporter Reporter
	online   OnlineSignal
	sleep    SleepFunc
}

// Option configures an Executor.
type Option func(*Executor)

// WithReporter sets the error reporter.
func WithReporter(r Reporter) Option {
	return func(e *Executor) { e.reporter = r }
}

// WithOnlineSignal gates retries on the given signal.
func WithOnlineSignal(s OnlineSignal) Option {
	return func(e *Executor) { e.online = s }
}

// WithSleep replaces the backoff wait. Tests use it to record delays.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor creates a new Executor.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: policy.normalized(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Run executes fn with up to maxRetries retries.
func (e *Executor) Run(ctx context.Context, op string, maxRetries int, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, e, op, maxRetries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn up to maxRetries+1 times. Only transient failures are
// retried; attempt n+1 starts after attempt n has returned. A transient
// failure that exhausts the bound is returned as *domain.TransientNetworkError.
func Execute[T any](ctx context.Context, e *Executor, op string, maxRetries int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRetries > e.policy.MaxRetries {
		maxRetries = e.policy.MaxRetries
	}

	var lastErr error
	attempts := 0
	for retry := 0; retry <= maxRetries; retry++ {
		if retry > 0 {
			if e.online != nil && !e.online.IsOnline() {
				break
			}
			if err := e.sleep(ctx, e.policy.Delay(retry)); err != nil {
				lastErr = err
				break
			}
			metrics.RemoteCallRetries.WithLabelValues(op).Inc()
		}

		attempts++
		result, err := runAttempt(ctx, e.policy.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, e.report(ctx, op, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	var transient *domain.TransientNetworkError
	if errors.As(lastErr, &transient) && transient.Attempts > 0 {
		return zero, e.report(ctx, op, lastErr)
	}
	return zero, e.report(ctx, op, &domain.TransientNetworkError{Op: op, Attempts: attempts, Err: lastErr})
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func (e *Executor) report(ctx context.Context, op string, err error) error {
	if e.reporter != nil {
		e.reporter.Report(ctx, op, err)
	}
	return err
}
