package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

const maintenanceTimeout = 10 * time.Minute

// Scheduler runs ledger maintenance (settlement redrive followed by a ledger
// audit) on the interval stored in the schedule settings. In manual mode
// nothing is scheduled and maintenance only runs from the admin endpoints.
type Scheduler struct {
	cron       *cron.Cron
	settlement *service.SettlementService
	audit      *service.AuditService
	log        logrus.FieldLogger

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// NewScheduler creates a new Scheduler. Call Apply to install the first schedule.
func NewScheduler(settlement *service.SettlementService, audit *service.AuditService, log logrus.FieldLogger) *Scheduler {
	log = log.WithField("component", "scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		)),
		settlement: settlement,
		audit:      audit,
		log:        log,
	}
}

// Apply replaces the current schedule. It is safe to call from a settings
// change listener.
func (s *Scheduler) Apply(settings domain.ScheduleSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	if settings.Mode != domain.ScheduleModeScheduled {
		s.log.Info("maintenance schedule disabled")
		return nil
	}

	expr := fmt.Sprintf("@every %dm", settings.IntervalMinutes)
	id, err := s.cron.AddFunc(expr, s.runMaintenance)
	if err != nil {
		return err
	}
	s.entryID = id
	s.log.WithField("interval_minutes", settings.IntervalMinutes).Info("maintenance scheduled")
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.cron.Start()
		s.running = true
	}
}

// Stop stops the scheduler and waits for a running job up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("maintenance job still running at shutdown")
	}
}

func (s *Scheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	redrive, err := s.settlement.RedrivePending(ctx)
	if err != nil {
		s.log.WithError(err).Error("settlement redrive failed")
	} else {
		s.log.WithFields(logrus.Fields{
			"attempted": redrive.Attempted,
			"settled":   redrive.Settled,
			"failed":    redrive.Failed,
		}).Info("settlement redrive finished")
	}

	report, err := s.audit.Run(ctx)
	if err != nil {
		s.log.WithError(err).Error("ledger audit failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"wallets":    report.WalletsChecked,
		"mismatches": len(report.Mismatches),
	}).Info("ledger audit finished")
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
