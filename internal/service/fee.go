package service

import (
	"context"

	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
)

// CancellationActor identifies who cancelled a ride.
type CancellationActor string

const (
	ActorPassenger CancellationActor = "passenger"
	ActorDriver    CancellationActor = "driver"
	ActorAdmin     CancellationActor = "admin"
)

// FeePolicy decides the fee charged to the passenger for a cancellation.
// It is consulted only for cancellations from driver_arriving onward.
type FeePolicy interface {
	CancellationFee(ctx context.Context, ride *domain.Ride, from domain.RideStatus, actor CancellationActor) decimal.Decimal
}

// FixedCancellationFee charges a flat fee when the passenger cancels after
// the driver set off. Driver and admin cancellations are free.
type FixedCancellationFee struct {
	Amount decimal.Decimal
}

// CancellationFee implements FeePolicy.
func (p FixedCancellationFee) CancellationFee(_ context.Context, _ *domain.Ride, from domain.RideStatus, actor CancellationActor) decimal.Decimal {
	if actor != ActorPassenger || !domain.CarriesCancellationRisk(from) {
		return decimal.Zero
	}
	if p.Amount.IsNegative() {
		return decimal.Zero
	}
	return p.Amount
}
