package resilience

import (
	"context"
	"errors"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/metrics"
)

// LogReporter logs, counts and forwards every final error to New Relic when a
// transaction is attached to the context.
type LogReporter struct {
	log logrus.FieldLogger
}

// NewLogReporter creates a new LogReporter.
func NewLogReporter(log logrus.FieldLogger) *LogReporter {
	return &LogReporter{log: log}
}

// Report records err for op.
func (r *LogReporter) Report(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	kind := Kind(err)
	metrics.RemoteCallFailures.WithLabelValues(op, kind).Inc()

	entry := r.log.WithFields(logrus.Fields{
		"op":           op,
		"kind":         kind,
		"user_message": domain.UserMessage(err),
	}).WithError(err)

	var transient *domain.TransientNetworkError
	if errors.As(err, &transient) {
		entry = entry.WithField("attempts", transient.Attempts)
	}

	switch kind {
	case "validation", "conflict", "insufficient_funds", "canceled":
		entry.Info("remote call rejected")
	default:
		entry.Warn("remote call failed")
	}

	if txn := newrelic.FromContext(ctx); txn != nil {
		txn.NoticeError(err)
	}
}
