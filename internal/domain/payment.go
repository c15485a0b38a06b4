package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PreferenceStatus represents the state of an external payment preference.
type PreferenceStatus string

const (
	PreferenceStatusPending   PreferenceStatus = "PENDING"
	PreferenceStatusConfirmed PreferenceStatus = "CONFIRMED"
	PreferenceStatusFailed    PreferenceStatus = "FAILED"
)

// PaymentPreference is a checkout created at the external processor for a ride.
// Reference doubles as the processor idempotency key.
type PaymentPreference struct {
	ID            string
	RideID        string
	Amount        decimal.Decimal
	Reference     string
	ProcessorID   string
	RedirectURL   string
	Status        PreferenceStatus
	TransactionID string
	CreatedAt     time.Time
}
