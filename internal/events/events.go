package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys published on the ride events exchange.
const (
	RideCompleted          = "ride.completed"
	RideCancelled          = "ride.cancelled"
	ReconciliationRequired = "settlement.reconciliation_required"
	CashSettled            = "settlement.cash_recorded"
)

// RideEvent is published when a ride reaches a terminal state.
type RideEvent struct {
	RideID          string           `json:"ride_id"`
	Status          string           `json:"status"`
	PassengerID     string           `json:"passenger_id"`
	DriverID        string           `json:"driver_id,omitempty"`
	PaymentMethod   string           `json:"payment_method"`
	Fare            *decimal.Decimal `json:"fare,omitempty"`
	CancellationFee *decimal.Decimal `json:"cancellation_fee,omitempty"`
	CancelledBy     string           `json:"cancelled_by,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// ReconciliationEvent is published when a settlement stops half-applied.
type ReconciliationEvent struct {
	RideID    string    `json:"ride_id"`
	Step      string    `json:"step"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// CashSettlementEvent notes a ride the passenger paid in cash. It moves no
// money on the passenger's wallet.
type CashSettlementEvent struct {
	RideID       string          `json:"ride_id"`
	PassengerID  string          `json:"passenger_id"`
	DriverID     string          `json:"driver_id,omitempty"`
	Fare         decimal.Decimal `json:"fare"`
	CashReceived decimal.Decimal `json:"cash_received"`
	Note         string          `json:"note"`
	Timestamp    time.Time       `json:"timestamp"`
}
