package service

import (
	"errors"

	"ridecore/internal/domain"
)

var (
	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = &domain.TerminalValidationError{Field: "ride_id", Message: "ride id is required"}

	// ErrInvalidPassengerID is returned when passenger ID is empty.
	ErrInvalidPassengerID = &domain.TerminalValidationError{Field: "passenger_id", Message: "passenger id is required"}

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = &domain.TerminalValidationError{Field: "driver_id", Message: "driver id is required"}

	// ErrInvalidUserID is returned when user ID is empty.
	ErrInvalidUserID = &domain.TerminalValidationError{Field: "user_id", Message: "user id is required"}

	// ErrInvalidAmount is returned when an amount is zero or has the wrong sign.
	ErrInvalidAmount = &domain.TerminalValidationError{Field: "amount", Message: "amount must be positive"}

	// ErrInvalidFare is returned when a fare is negative.
	ErrInvalidFare = &domain.TerminalValidationError{Field: "fare", Message: "fare must not be negative"}

	// ErrInvalidRideType is returned for an unknown ride type.
	ErrInvalidRideType = &domain.TerminalValidationError{Field: "type", Message: "unknown ride type"}

	// ErrInvalidPaymentMethod is returned when payment method is invalid.
	ErrInvalidPaymentMethod = &domain.TerminalValidationError{Field: "payment_method", Message: "unknown payment method"}

	// ErrInvalidEntryType is returned for an unknown or reserved ledger entry type.
	ErrInvalidEntryType = &domain.TerminalValidationError{Field: "type", Message: "unknown entry type"}

	// ErrInvalidReference is returned when a payment reference is malformed.
	ErrInvalidReference = &domain.TerminalValidationError{Field: "reference", Message: "reference must be 4-64 characters of letters, digits, '-' or '_'"}

	// ErrInvalidVerificationStatus is returned when a request is resolved to a non-final status.
	ErrInvalidVerificationStatus = &domain.TerminalValidationError{Field: "status", Message: "status must be approved or rejected"}

	// ErrInvalidReason is returned when a manual adjustment has no reason.
	ErrInvalidReason = &domain.TerminalValidationError{Field: "reason", Message: "reason is required"}

	// ErrDriverNotAssignedToRide is returned when driver is not assigned to the ride.
	ErrDriverNotAssignedToRide = errors.New("driver not assigned to this ride")

	// ErrNotRideParticipant is returned when the actor is neither the passenger nor the driver.
	ErrNotRideParticipant = errors.New("actor is not a participant of this ride")

	// ErrDriverHasActiveRide is returned when driver already holds an active ride.
	ErrDriverHasActiveRide = errors.New("driver already has an active ride")

	// ErrDriverOffline is returned when assigning a driver who is not online.
	ErrDriverOffline = errors.New("driver is offline")

	// ErrSettlementInProgress is returned when another worker holds the settlement lock.
	ErrSettlementInProgress = errors.New("settlement already in progress")

	// ErrRideNotSettleable is returned when settling a ride that has not ended.
	ErrRideNotSettleable = errors.New("ride is not in a terminal state")

	// ErrRideNotAwaitingPayment is returned when a processor confirmation arrives
	// for a ride that is not waiting for one.
	ErrRideNotAwaitingPayment = errors.New("ride is not awaiting an external payment")

	// ErrSettlementNeedsReconciliation is returned when settling a ride that is
	// flagged for manual reconciliation.
	ErrSettlementNeedsReconciliation = errors.New("settlement requires manual reconciliation")

	// ErrVerificationExpired is returned when resolving an expired verification request.
	ErrVerificationExpired = errors.New("verification request expired")

	// ErrVerificationResolved is returned when resolving a request that is no longer pending.
	ErrVerificationResolved = errors.New("verification request already resolved")

	// ErrWebhookSignature is returned when a processor webhook fails verification.
	ErrWebhookSignature = errors.New("invalid webhook signature")
)
