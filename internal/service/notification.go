package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/events"
)

// NotificationService publishes ride and settlement events.
// Delivery failures are logged and never fail the caller.
type NotificationService struct {
	publisher events.Publisher
	log       logrus.FieldLogger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher events.Publisher, log logrus.FieldLogger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		log:       log.WithField("component", "notifications"),
	}
}

// NotifyRideCompleted publishes ride.completed.
func (s *NotificationService) NotifyRideCompleted(ctx context.Context, ride *domain.Ride) {
	s.send(ctx, events.RideCompleted, rideEvent(ride))
}

// NotifyRideCancelled publishes ride.cancelled.
func (s *NotificationService) NotifyRideCancelled(ctx context.Context, ride *domain.Ride) {
	event := rideEvent(ride)
	event.CancelledBy = ride.CancelledBy
	if ride.CancellationFee.IsPositive() {
		fee := ride.CancellationFee
		event.CancellationFee = &fee
	}
	s.send(ctx, events.RideCancelled, event)
}

// NotifyCashSettled publishes settlement.cash_recorded, the passenger's note
// for a ride paid in cash.
func (s *NotificationService) NotifyCashSettled(ctx context.Context, ride *domain.Ride, cash decimal.Decimal) {
	s.send(ctx, events.CashSettled, events.CashSettlementEvent{
		RideID:       ride.ID,
		PassengerID:  ride.PassengerID,
		DriverID:     ride.DriverID,
		Fare:         rideFare(ride),
		CashReceived: cash,
		Note:         "paid in cash to the driver",
		Timestamp:    time.Now().UTC(),
	})
}

// NotifyReconciliationRequired publishes settlement.reconciliation_required.
func (s *NotificationService) NotifyReconciliationRequired(ctx context.Context, flag *domain.ReconciliationFlag) {
	s.send(ctx, events.ReconciliationRequired, events.ReconciliationEvent{
		RideID:    flag.RideID,
		Step:      flag.Step,
		Detail:    flag.Detail,
		Timestamp: flag.CreatedAt,
	})
}

func (s *NotificationService) send(ctx context.Context, routingKey string, body any) {
	if err := s.publisher.Publish(ctx, routingKey, body); err != nil {
		s.log.WithError(err).WithField("routing_key", routingKey).Warn("failed to publish event")
	}
}

func rideEvent(ride *domain.Ride) events.RideEvent {
	return events.RideEvent{
		RideID:        ride.ID,
		Status:        string(ride.Status),
		PassengerID:   ride.PassengerID,
		DriverID:      ride.DriverID,
		PaymentMethod: string(ride.PaymentMethod),
		Fare:          ride.FareActual,
		Timestamp:     time.Now().UTC(),
	}
}
