package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusSearching      RideStatus = "searching"
	RideStatusDriverAssigned RideStatus = "driver_assigned"
	RideStatusDriverArriving RideStatus = "driver_arriving"
	RideStatusDriverArrived  RideStatus = "driver_arrived"
	RideStatusInProgress     RideStatus = "in_progress"
	RideStatusCompleted      RideStatus = "completed"
	RideStatusCancelled      RideStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// Valid reports whether s is a known status.
func (s RideStatus) Valid() bool {
	_, ok := rideProgression[s]
	return ok || s == RideStatusCancelled
}

// RideType represents the booking type of a ride.
type RideType string

const (
	RideTypeImmediate RideType = "immediate"
	RideTypeScheduled RideType = "scheduled"
	RideTypePackage   RideType = "package"
	RideTypeShared    RideType = "shared"
)

// Valid reports whether t is a known ride type.
func (t RideType) Valid() bool {
	switch t {
	case RideTypeImmediate, RideTypeScheduled, RideTypePackage, RideTypeShared:
		return true
	}
	return false
}

// PaymentMethod represents the payment method for a ride.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodWallet   PaymentMethod = "wallet"
	PaymentMethodExternal PaymentMethod = "external"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodWallet, PaymentMethodExternal:
		return true
	}
	return false
}

// SettlementStatus tracks the monetary finalization of a terminal ride.
type SettlementStatus string

const (
	SettlementNone                   SettlementStatus = "none"
	SettlementPending                SettlementStatus = "pending"
	SettlementAwaitingProcessor      SettlementStatus = "awaiting_processor"
	SettlementSettled                SettlementStatus = "settled"
	SettlementReconciliationRequired SettlementStatus = "reconciliation_required"
)

// Ride represents a ride in the system.
type Ride struct {
	ID                 string
	Type               RideType
	Status             RideStatus
	PassengerID        string
	DriverID           string
	PaymentMethod      PaymentMethod
	FareEstimated      decimal.Decimal
	FareActual         *decimal.Decimal // set only at completion
	DriverCashReceived *decimal.Decimal // cash settlement only
	CancelledBy        string
	CancelReason       string
	CancelledAt        time.Time
	CancellationFee    decimal.Decimal // charged to the passenger, zero when waived
	CompletedAt        time.Time
	SettlementStatus   SettlementStatus
	ExternalPaymentRef string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasDriver reports whether a driver has been assigned.
func (r *Ride) HasDriver() bool {
	return r.DriverID != ""
}

// rideProgression maps each non-cancelled status to its position in the forward ordering.
var rideProgression = map[RideStatus]int{
	RideStatusSearching:      0,
	RideStatusDriverAssigned: 1,
	RideStatusDriverArriving: 2,
	RideStatusDriverArrived:  3,
	RideStatusInProgress:     4,
	RideStatusCompleted:      5,
}

// rideTransitions is the explicit transition table. Cancellation from any
// non-terminal status is handled in CanTransition.
var rideTransitions = map[RideStatus]RideStatus{
	RideStatusSearching:      RideStatusDriverAssigned,
	RideStatusDriverAssigned: RideStatusDriverArriving,
	RideStatusDriverArriving: RideStatusDriverArrived,
	RideStatusDriverArrived:  RideStatusInProgress,
	RideStatusInProgress:     RideStatusCompleted,
}

// CanTransition validates the edge from -> to.
func CanTransition(from, to RideStatus) error {
	if !from.Valid() || !to.Valid() {
		return &InvalidTransitionError{From: from, To: to}
	}
	if from.IsTerminal() {
		return &AlreadyTerminalError{Status: from}
	}
	if to == RideStatusCancelled {
		return nil
	}
	if next, ok := rideTransitions[from]; ok && next == to {
		return nil
	}
	return &InvalidTransitionError{From: from, To: to}
}

// Transition moves the ride to the given status, rejecting illegal edges.
// The ride is left untouched on error.
func (r *Ride) Transition(to RideStatus, at time.Time) error {
	if err := CanTransition(r.Status, to); err != nil {
		if terminal, ok := err.(*AlreadyTerminalError); ok {
			terminal.RideID = r.ID
		}
		return err
	}
	r.Status = to
	r.UpdatedAt = at
	switch to {
	case RideStatusCompleted:
		r.CompletedAt = at
	case RideStatusCancelled:
		r.CancelledAt = at
	}
	return nil
}

// CarriesCancellationRisk reports whether a cancellation from s may incur a fee.
func CarriesCancellationRisk(s RideStatus) bool {
	return rideProgression[s] >= rideProgression[RideStatusDriverArriving] && !s.IsTerminal()
}
