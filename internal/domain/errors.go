package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TransientNetworkError is a retryable failure that exhausted its retry bound.
type TransientNetworkError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientNetworkError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s: transient failure after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// TerminalValidationError reports bad input. It is never retried.
type TerminalValidationError struct {
	Field   string
	Message string
}

func (e *TerminalValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConflictError reports a duplicate live request.
type ConflictError struct {
	Resource   string
	ExistingID string
	Message    string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s already has a pending request %s", e.Resource, e.ExistingID)
}

// AlreadyTerminalError is returned when a ride in a terminal status is mutated.
type AlreadyTerminalError struct {
	RideID string
	Status RideStatus
}

func (e *AlreadyTerminalError) Error() string {
	if e.RideID == "" {
		return fmt.Sprintf("ride is already %s", e.Status)
	}
	return fmt.Sprintf("ride %s is already %s", e.RideID, e.Status)
}

// InvalidTransitionError is returned for an edge missing from the transition table.
type InvalidTransitionError struct {
	From RideStatus
	To   RideStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid ride transition %s -> %s", e.From, e.To)
}

// InsufficientFundsError is returned when a debit would exceed the available balance.
type InsufficientFundsError struct {
	UserID    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// SettlementPartialFailureError marks a settlement that applied some but not all
// ledger entries. The ride is flagged for manual reconciliation.
type SettlementPartialFailureError struct {
	RideID string
	Step   string
	Err    error
}

func (e *SettlementPartialFailureError) Error() string {
	return fmt.Sprintf("settlement of ride %s failed at %s: %v", e.RideID, e.Step, e.Err)
}

func (e *SettlementPartialFailureError) Unwrap() error { return e.Err }

// ExternalProcessorError carries the payment processor's own detail.
type ExternalProcessorError struct {
	Processor string
	Code      string
	Detail    string
	Err       error
}

func (e *ExternalProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Processor, e.Detail, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Processor, e.Detail)
}

func (e *ExternalProcessorError) Unwrap() error { return e.Err }

// DefaultUserMessage is shown for errors outside the taxonomy.
const DefaultUserMessage = "Something went wrong. Please try again."

// UserMessage returns the single human-readable message shown for err.
func UserMessage(err error) string {
	var (
		transient  *TransientNetworkError
		validation *TerminalValidationError
		conflict   *ConflictError
		terminal   *AlreadyTerminalError
		transition *InvalidTransitionError
		funds      *InsufficientFundsError
		partial    *SettlementPartialFailureError
		processor  *ExternalProcessorError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &partial):
		return "Payment could not be completed and has been flagged for review."
	case errors.As(err, &transient):
		return "Connection problem. Please check your network and try again."
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &conflict):
		return "A request is already pending."
	case errors.As(err, &terminal):
		return fmt.Sprintf("This ride is already %s.", terminal.Status)
	case errors.As(err, &transition):
		return "This action is not available for the ride right now."
	case errors.As(err, &funds):
		return "Insufficient wallet balance."
	case errors.As(err, &processor):
		return processor.Detail
	default:
		return DefaultUserMessage
	}
}
