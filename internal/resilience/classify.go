package resilience

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"

	"ridecore/internal/domain"
)

// transientPQCodes are PostgreSQL error codes worth retrying.
var transientPQCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *domain.TransientNetworkError
	if errors.As(err, &transient) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08" || transientPQCodes[pqErr.Code]
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Kind names the taxonomy bucket of err for logs and metrics.
func Kind(err error) string {
	var (
		validation *domain.TerminalValidationError
		conflict   *domain.ConflictError
		terminal   *domain.AlreadyTerminalError
		transition *domain.InvalidTransitionError
		funds      *domain.InsufficientFundsError
		partial    *domain.SettlementPartialFailureError
		processor  *domain.ExternalProcessorError
	)
	switch {
	case errors.As(err, &partial):
		return "settlement_partial_failure"
	case errors.As(err, &processor):
		return "external_processor"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &conflict), errors.As(err, &terminal), errors.As(err, &transition):
		return "conflict"
	case errors.As(err, &funds):
		return "insufficient_funds"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsTransient(err):
		return "transient"
	default:
		return "terminal"
	}
}

// IsAuthFailure reports whether err is a credential rejection from Postgres or
// Redis rather than a connectivity problem.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "28"
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS")
}
