package resilience

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"ridecore/internal/domain"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type recordingReporter struct {
	mu     sync.Mutex
	errors []error
}

func (r *recordingReporter) Report(ctx context.Context, op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

type staticSignal bool

func (s staticSignal) IsOnline() bool { return bool(s) }

func newTestExecutor(opts ...Option) (*Executor, *recordingSleeper, *recordingReporter) {
	sleeper := &recordingSleeper{}
	reporter := &recordingReporter{}
	opts = append([]Option{WithSleep(sleeper.sleep), WithReporter(reporter)}, opts...)
	return NewExecutor(DefaultPolicy(), opts...), sleeper, reporter
}

func TestExecute_SucceedsAfterTwoTransientFailures(t *testing.T) {
	exec, sleeper, reporter := newTestExecutor()

	calls := 0
	result, err := Execute(context.Background(), exec, "test.op", 2, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", io.ErrUnexpectedEOF
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected result ok, got %q", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(sleeper.delays) != 2 {
		t.Fatalf("expected exactly 2 retry delays, got %d", len(sleeper.delays))
	}
	if sleeper.delays[1] <= sleeper.delays[0] {
		t.Errorf("expected escalating delays, got %v", sleeper.delays)
	}
	if len(reporter.errors) != 0 {
		t.Errorf("expected no reported errors, got %d", len(reporter.errors))
	}
}

func TestExecute_ZeroRetriesFailsImmediately(t *testing.T) {
	exec, sleeper, reporter := newTestExecutor()

	calls := 0
	err := exec.Run(context.Background(), "test.op", 0, func(ctx context.Context) error {
		calls++
		return io.EOF
	})

	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("expected no delay, got %v", sleeper.delays)
	}

	var transient *domain.TransientNetworkError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientNetworkError, got %v", err)
	}
	if transient.Attempts != 1 {
		t.Errorf("expected 1 attempt recorded, got %d", transient.Attempts)
	}
	if len(reporter.errors) != 1 {
		t.Errorf("expected 1 reported error, got %d", len(reporter.errors))
	}
}

func TestExecute_TerminalErrorIsNotRetried(t *testing.T) {
	exec, sleeper, reporter := newTestExecutor()
	validation := &domain.TerminalValidationError{Field: "amount", Message: "must be positive"}

	calls := 0
	err := exec.Run(context.Background(), "test.op", 3, func(ctx context.Context) error {
		calls++
		return validation
	})

	if err != validation {
		t.Errorf("expected the validation error unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("expected no delay, got %v", sleeper.delays)
	}
	if len(reporter.errors) != 1 {
		t.Errorf("expected terminal error to be reported once, got %d", len(reporter.errors))
	}
}

func TestExecute_NeverExceedsMaxRetries(t *testing.T) {
	exec, sleeper, _ := newTestExecutor()

	calls := 0
	err := exec.Run(context.Background(), "test.op", 2, func(ctx context.Context) error {
		calls++
		return &pq.Error{Code: "40001"}
	})

	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(sleeper.delays) != 2 {
		t.Errorf("expected 2 delays, got %d", len(sleeper.delays))
	}
	var transient *domain.TransientNetworkError
	if !errors.As(err, &transient) || transient.Attempts != 3 {
		t.Errorf("expected TransientNetworkError after 3 attempts, got %v", err)
	}
}

func TestExecute_RetryCeilingCapsCallerBound(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := DefaultPolicy()
	policy.MaxRetries = 1
	exec := NewExecutor(policy, WithSleep(sleeper.sleep))

	calls := 0
	_ = exec.Run(context.Background(), "test.op", 10, func(ctx context.Context) error {
		calls++
		return io.EOF
	})

	if calls != 2 {
		t.Errorf("expected ceiling of 2 attempts, got %d", calls)
	}
}

func TestExecute_OfflineSignalStopsRetries(t *testing.T) {
	exec, sleeper, _ := newTestExecutor(WithOnlineSignal(staticSignal(false)))

	calls := 0
	err := exec.Run(context.Background(), "test.op", 3, func(ctx context.Context) error {
		calls++
		return io.EOF
	})

	if calls != 1 {
		t.Errorf("expected only the first attempt while offline, got %d", calls)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("expected no delay while offline, got %v", sleeper.delays)
	}
	var transient *domain.TransientNetworkError
	if !errors.As(err, &transient) {
		t.Errorf("expected TransientNetworkError, got %v", err)
	}
}

func TestExecute_AttemptTimeoutIsTransient(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := DefaultPolicy()
	policy.AttemptTimeout = 10 * time.Millisecond
	exec := NewExecutor(policy, WithSleep(sleeper.sleep))

	calls := 0
	err := exec.Run(context.Background(), "test.op", 1, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	if calls != 2 {
		t.Errorf("expected timed out attempt to be retried once, got %d attempts", calls)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded to be wrapped, got %v", err)
	}
}

func TestPolicyDelay_StrictlyIncreasing(t *testing.T) {
	policy := DefaultPolicy()
	prev := time.Duration(0)
	for n := 1; n <= 5; n++ {
		d := policy.Delay(n)
		if d <= prev {
			t.Fatalf("delay %d (%v) not greater than previous (%v)", n, d, prev)
		}
		prev = d
	}
}

func TestIsTransient(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"eof", io.EOF, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"connection exception", &pq.Error{Code: "08006"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"validation", &domain.TerminalValidationError{Message: "bad"}, false},
		{"conflict", &domain.ConflictError{ExistingID: "a"}, false},
		{"explicit transient", &domain.TransientNetworkError{Op: "x"}, true},
		{"plain", errors.New("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsAuthFailure(t *testing.T) {
	if !IsAuthFailure(&pq.Error{Code: "28P01"}) {
		t.Error("expected invalid_password to be an auth failure")
	}
	if !IsAuthFailure(errors.New("WRONGPASS invalid username-password pair")) {
		t.Error("expected redis WRONGPASS to be an auth failure")
	}
	if IsAuthFailure(io.EOF) {
		t.Error("expected EOF not to be an auth failure")
	}
}
