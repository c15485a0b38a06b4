package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeProber struct {
	calls   int32
	err     error
	release chan struct{}
}

func (p *fakeProber) Probe(ctx context.Context) error {
	atomic.AddInt32(&p.calls, 1)
	if p.release != nil {
		<-p.release
	}
	return p.err
}

type fakeReach struct{ reachable atomic.Bool }

func (r *fakeReach) Reachable() bool { return r.reachable.Load() }

func newTestMonitor(prober Prober, reach ReachabilitySource) *Monitor {
	logger, _ := test.NewNullLogger()
	return NewMonitor(reach, prober, Config{MinInterval: 10 * time.Second}, logger)
}

func TestMonitor_OnlineBeforeFirstProbe(t *testing.T) {
	m := newTestMonitor(&fakeProber{}, nil)
	if !m.IsOnline() {
		t.Error("expected monitor to start online")
	}
}

func TestMonitor_ProbeFailureMarksOffline(t *testing.T) {
	m := newTestMonitor(&fakeProber{err: errors.New("dial tcp: connection refused")}, nil)

	if m.Recheck(context.Background()) {
		t.Error("expected recheck to report offline")
	}
	if m.IsOnline() {
		t.Error("expected IsOnline false after failed probe")
	}
}

func TestMonitor_AuthFailureIsNotOffline(t *testing.T) {
	m := newTestMonitor(&fakeProber{err: &pq.Error{Code: "28P01"}}, nil)

	if !m.Recheck(context.Background()) {
		t.Error("expected auth failure to keep the monitor online")
	}
	if !m.State().AuthFailure {
		t.Error("expected state to record the auth failure")
	}
}

func TestMonitor_RateLimitsProbes(t *testing.T) {
	prober := &fakeProber{}
	m := newTestMonitor(prober, nil)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Recheck(context.Background())
	now = now.Add(5 * time.Second)
	m.Recheck(context.Background())

	if got := atomic.LoadInt32(&prober.calls); got != 1 {
		t.Errorf("expected 1 probe within the interval, got %d", got)
	}

	now = now.Add(6 * time.Second)
	m.Recheck(context.Background())
	if got := atomic.LoadInt32(&prober.calls); got != 2 {
		t.Errorf("expected a second probe after the interval, got %d", got)
	}
}

func TestMonitor_CoalescesConcurrentChecks(t *testing.T) {
	prober := &fakeProber{release: make(chan struct{})}
	m := newTestMonitor(prober, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Recheck(context.Background())
		}()
	}

	deadline := time.Now().Add(time.Second)
	for !m.IsChecking() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !m.IsChecking() {
		t.Fatal("expected a probe to be in flight")
	}
	close(prober.release)
	wg.Wait()

	if got := atomic.LoadInt32(&prober.calls); got != 1 {
		t.Errorf("expected concurrent checks to share one probe, got %d", got)
	}
}

func TestMonitor_UnreachableHostIsOffline(t *testing.T) {
	reach := &fakeReach{}
	m := newTestMonitor(&fakeProber{}, reach)

	if m.IsOnline() {
		t.Error("expected offline while host is unreachable")
	}
	reach.reachable.Store(true)
	if !m.IsOnline() {
		t.Error("expected online once host is reachable")
	}
}
