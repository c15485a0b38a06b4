// Package connectivity maintains the online signal consulted before retries.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"ridecore/internal/metrics"
	"ridecore/internal/resilience"
)

const (
	// DefaultMinInterval is the minimum spacing between two backend probes.
	DefaultMinInterval = 10 * time.Second
	defaultProbeTimeout = 3 * time.Second
	probeKey            = "probe"
)

// ReachabilitySource reports whether the host itself has a usable network.
type ReachabilitySource interface {
	Reachable() bool
}

// Prober performs one lightweight round trip against the backend.
type Prober interface {
	Probe(ctx context.Context) error
}

// State is a snapshot of the monitor.
type State struct {
	Online      bool      `json:"online"`
	Reachable   bool      `json:"reachable"`
	Checking    bool      `json:"checking"`
	AuthFailure bool      `json:"auth_failure"`
	LastProbe   time.Time `json:"last_probe"`
	LastError   string    `json:"last_error,omitempty"`
}

// Monitor combines host reachability with a rate-limited backend probe.
// Concurrent rechecks share one in-flight probe.
type Monitor struct {
	reach        ReachabilitySource
	prober       Prober
	minInterval  time.Duration
	probeTimeout time.Duration
	now          func() time.Time
	log          logrus.FieldLogger

	group    singleflight.Group
	checking atomic.Bool

	mu          sync.RWMutex
	probeOK     bool
	authFailure bool
	lastProbe   time.Time
	lastErr     error
}

// Config holds the monitor tunables.
type Config struct {
	MinInterval  time.Duration
	ProbeTimeout time.Duration
}

// NewMonitor creates a new Monitor. The backend is assumed reachable until
// the first probe says otherwise.
func NewMonitor(reach ReachabilitySource, prober Prober, cfg Config, log logrus.FieldLogger) *Monitor {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	metrics.ConnectivityOnline.Set(1)
	return &Monitor{
		reach:        reach,
		prober:       prober,
		minInterval:  cfg.MinInterval,
		probeTimeout: cfg.ProbeTimeout,
		now:          time.Now,
		log:          log.WithField("component", "connectivity"),
		probeOK:      true,
	}
}

// IsOnline reports the combined signal.
func (m *Monitor) IsOnline() bool {
	if m.reach != nil && !m.reach.Reachable() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probeOK
}

// IsChecking reports whether a probe is in flight.
func (m *Monitor) IsChecking() bool {
	return m.checking.Load()
}

// State returns a snapshot for health endpoints.
func (m *Monitor) State() State {
	m.mu.RLock()
	s := State{
		Reachable:   m.reach == nil || m.reach.Reachable(),
		Checking:    m.IsChecking(),
		AuthFailure: m.authFailure,
		LastProbe:   m.lastProbe,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	probeOK := m.probeOK
	m.mu.RUnlock()
	s.Online = s.Reachable && probeOK
	return s
}

// Recheck probes the backend unless a probe ran within the minimum interval,
// and returns the resulting online signal. Callers that give up waiting get
// the last known signal; the shared probe keeps running.
func (m *Monitor) Recheck(ctx context.Context) bool {
	ch := m.group.DoChan(probeKey, func() (any, error) {
		return m.probe(), nil
	})
	select {
	case res := <-ch:
		online, _ := res.Val.(bool)
		return online && (m.reach == nil || m.reach.Reachable())
	case <-ctx.Done():
		return m.IsOnline()
	}
}

// Run rechecks on every interval tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.minInterval)
	defer ticker.Stop()

	m.Recheck(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Recheck(ctx)
		}
	}
}

func (m *Monitor) probe() bool {
	m.mu.RLock()
	recent := !m.lastProbe.IsZero() && m.now().Sub(m.lastProbe) < m.minInterval
	cached := m.probeOK
	m.mu.RUnlock()
	if recent {
		return cached
	}

	m.checking.Store(true)
	defer m.checking.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()
	err := m.prober.Probe(ctx)

	auth := resilience.IsAuthFailure(err)
	online := err == nil || auth

	m.mu.Lock()
	wasOnline := m.probeOK
	m.probeOK = online
	m.authFailure = auth
	m.lastErr = err
	m.lastProbe = m.now()
	m.mu.Unlock()

	switch {
	case auth:
		m.log.WithError(err).Warn("backend rejected credentials; treating as online")
	case !online && wasOnline:
		m.log.WithError(err).Warn("backend unreachable")
	case online && !wasOnline:
		m.log.Info("backend reachable again")
	}
	if online {
		metrics.ConnectivityOnline.Set(1)
	} else {
		metrics.ConnectivityOnline.Set(0)
	}
	return online
}
