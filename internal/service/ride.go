package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

// RideService drives rides through their lifecycle. Every status write is a
// compare-and-set on the previous status, so of two concurrent callers only
// one wins a transition and only the winner triggers settlement.
type RideService struct {
	rideRepo            repository.RideRepository
	driverRepo          repository.DriverRepository
	settler             Settler
	feePolicy           FeePolicy
	executor            *resilience.Executor
	notificationService *NotificationService
	log                 logrus.FieldLogger
}

// NewRideService creates a new RideService.
func NewRideService(
	rideRepo repository.RideRepository,
	driverRepo repository.DriverRepository,
	settler Settler,
	feePolicy FeePolicy,
	executor *resilience.Executor,
	notificationService *NotificationService,
	log logrus.FieldLogger,
) *RideService {
	return &RideService{
		rideRepo:            rideRepo,
		driverRepo:          driverRepo,
		settler:             settler,
		feePolicy:           feePolicy,
		executor:            executor,
		notificationService: notificationService,
		log:                 log.WithField("component", "rides"),
	}
}

// CreateRideRequest contains the parameters for creating a ride.
type CreateRideRequest struct {
	PassengerID   string
	Type          domain.RideType      // Optional: defaults to immediate
	PaymentMethod domain.PaymentMethod // Optional: defaults to cash
	FareEstimated decimal.Decimal
}

// CreateRide creates a ride in searching.
func (s *RideService) CreateRide(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	if req.PassengerID == "" {
		return nil, ErrInvalidPassengerID
	}

	rideType := req.Type
	if rideType == "" {
		rideType = domain.RideTypeImmediate
	}
	if !rideType.Valid() {
		return nil, ErrInvalidRideType
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = domain.PaymentMethodCash
	}
	if !paymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	if req.FareEstimated.IsNegative() {
		return nil, ErrInvalidFare
	}

	now := time.Now().UTC()
	ride := &domain.Ride{
		ID:               uuid.New().String(),
		Type:             rideType,
		Status:           domain.RideStatusSearching,
		PassengerID:      req.PassengerID,
		PaymentMethod:    paymentMethod,
		FareEstimated:    req.FareEstimated,
		SettlementStatus: domain.SettlementNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.executor.Run(ctx, "ride.create", noRetry, func(ctx context.Context) error {
		return s.rideRepo.Create(ctx, ride)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"ride_id": ride.ID, "passenger_id": ride.PassengerID}).Info("ride created")
	return ride, nil
}

// GetRide retrieves a ride.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	return s.getRide(ctx, rideID)
}

// GetActiveRideForDriver retrieves the ride a driver currently holds.
// Returns nil if the driver holds none.
func (s *RideService) GetActiveRideForDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return resilience.Execute(ctx, s.executor, "ride.get_active_for_driver", readRetries, func(ctx context.Context) (*domain.Ride, error) {
		return s.rideRepo.GetActiveByDriverID(ctx, driverID)
	})
}

// AssignDriver assigns an available driver to a searching ride.
func (s *RideService) AssignDriver(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	driver, err := resilience.Execute(ctx, s.executor, "driver.get", readRetries, func(ctx context.Context) (*domain.Driver, error) {
		return s.driverRepo.GetByID(ctx, driverID)
	})
	if err != nil {
		return nil, err
	}
	if driver.ActiveRideID != "" && driver.ActiveRideID != rideID {
		return nil, ErrDriverHasActiveRide
	}
	if driver.Status == domain.DriverStatusOffline {
		return nil, ErrDriverOffline
	}

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	from := ride.Status
	next := *ride
	if err := next.Transition(domain.RideStatusDriverAssigned, time.Now().UTC()); err != nil {
		return nil, err
	}
	next.DriverID = driverID

	if err := s.apply(ctx, &next, from); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"ride_id": rideID, "driver_id": driverID}).Info("driver assigned")
	return &next, nil
}

// MarkArriving records that the assigned driver is on the way.
func (s *RideService) MarkArriving(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	return s.advance(ctx, rideID, driverID, domain.RideStatusDriverArriving)
}

// MarkArrived records that the assigned driver reached the pickup point.
func (s *RideService) MarkArrived(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	return s.advance(ctx, rideID, driverID, domain.RideStatusDriverArrived)
}

// StartRide records that the passenger boarded.
func (s *RideService) StartRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	return s.advance(ctx, rideID, driverID, domain.RideStatusInProgress)
}

// CompleteRideRequest contains the parameters for completing a ride.
type CompleteRideRequest struct {
	RideID             string
	DriverID           string
	ActualFare         decimal.Decimal
	DriverCashReceived *decimal.Decimal // cash rides only; nil means the full fare
}

// CompleteRide completes an in-progress ride and settles it. The fare and the
// pending settlement are written together with the status. When settlement
// fails after the ride completed, the completed ride is returned alongside
// the settlement error; a pending settlement is re-driven later.
func (s *RideService) CompleteRide(ctx context.Context, req CompleteRideRequest) (*domain.Ride, error) {
	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.ActualFare.IsNegative() {
		return nil, ErrInvalidFare
	}
	if req.DriverCashReceived != nil && req.DriverCashReceived.IsNegative() {
		return nil, &domain.TerminalValidationError{Field: "driver_cash_received", Message: "cash received must not be negative"}
	}

	ride, err := s.getRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if ride.Status.IsTerminal() {
		return nil, &domain.AlreadyTerminalError{RideID: ride.ID, Status: ride.Status}
	}
	if ride.DriverID != req.DriverID {
		return nil, ErrDriverNotAssignedToRide
	}

	from := ride.Status
	next := *ride
	if err := next.Transition(domain.RideStatusCompleted, time.Now().UTC()); err != nil {
		return nil, err
	}
	fare := req.ActualFare
	next.FareActual = &fare
	if next.PaymentMethod == domain.PaymentMethodCash && req.DriverCashReceived != nil {
		cash := *req.DriverCashReceived
		next.DriverCashReceived = &cash
	}
	next.SettlementStatus = domain.SettlementPending

	if err := s.apply(ctx, &next, from); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id": next.ID,
		"fare":    fare.StringFixed(2),
		"method":  next.PaymentMethod,
	}).Info("ride completed")

	if s.notificationService != nil {
		s.notificationService.NotifyRideCompleted(ctx, &next)
	}

	return s.settle(ctx, &next)
}

// CancelRideRequest contains the parameters for cancelling a ride.
type CancelRideRequest struct {
	RideID      string
	CancelledBy string // passenger, driver or admin ID
	Reason      string
	Admin       bool
}

// CancelRide cancels a non-terminal ride. Cancelling from searching has no
// financial effect; later cancellations consult the fee policy.
func (s *RideService) CancelRide(ctx context.Context, req CancelRideRequest) (*domain.Ride, error) {
	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if req.CancelledBy == "" {
		return nil, &domain.TerminalValidationError{Field: "cancelled_by", Message: "canceller is required"}
	}

	ride, err := s.getRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if ride.Status.IsTerminal() {
		return nil, &domain.AlreadyTerminalError{RideID: ride.ID, Status: ride.Status}
	}

	actor, err := cancellationActor(ride, req)
	if err != nil {
		return nil, err
	}

	from := ride.Status
	next := *ride
	if err := next.Transition(domain.RideStatusCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	next.CancelledBy = req.CancelledBy
	next.CancelReason = req.Reason

	if domain.CarriesCancellationRisk(from) && s.feePolicy != nil {
		next.CancellationFee = s.feePolicy.CancellationFee(ctx, ride, from, actor)
	}
	if next.CancellationFee.IsPositive() {
		next.SettlementStatus = domain.SettlementPending
	}

	if err := s.apply(ctx, &next, from); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id": next.ID,
		"from":    from,
		"actor":   actor,
		"fee":     next.CancellationFee.StringFixed(2),
	}).Info("ride cancelled")

	if s.notificationService != nil {
		s.notificationService.NotifyRideCancelled(ctx, &next)
	}

	if next.SettlementStatus != domain.SettlementPending {
		return &next, nil
	}
	return s.settle(ctx, &next)
}

// advance moves a ride one step forward on behalf of its assigned driver.
func (s *RideService) advance(ctx context.Context, rideID, driverID string, to domain.RideStatus) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status.IsTerminal() {
		return nil, &domain.AlreadyTerminalError{RideID: ride.ID, Status: ride.Status}
	}
	if ride.DriverID != driverID {
		return nil, ErrDriverNotAssignedToRide
	}

	from := ride.Status
	next := *ride
	if err := next.Transition(to, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := s.apply(ctx, &next, from); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"ride_id": rideID, "from": from, "to": to}).Debug("ride advanced")
	return &next, nil
}

// apply persists a transition. A lost compare-and-set is reported against the
// status the winner left behind.
func (s *RideService) apply(ctx context.Context, ride *domain.Ride, from domain.RideStatus) error {
	err := s.executor.Run(ctx, "ride.apply_transition", noRetry, func(ctx context.Context) error {
		return s.rideRepo.ApplyTransition(ctx, ride, from)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDriverUnavailable):
		return ErrDriverHasActiveRide
	case errors.Is(err, repository.ErrStaleState):
		current, getErr := s.getRide(ctx, ride.ID)
		if getErr != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return &domain.AlreadyTerminalError{RideID: current.ID, Status: current.Status}
		}
		return &domain.InvalidTransitionError{From: current.Status, To: ride.Status}
	default:
		return err
	}
}

// settle runs settlement for a ride this caller moved to a terminal state.
func (s *RideService) settle(ctx context.Context, ride *domain.Ride) (*domain.Ride, error) {
	if s.settler == nil {
		return ride, nil
	}

	settleErr := s.settler.Settle(ctx, ride.ID)
	if settleErr != nil {
		s.log.WithError(settleErr).WithField("ride_id", ride.ID).Warn("settlement did not finish")
	}

	if fresh, err := s.getRide(ctx, ride.ID); err == nil {
		ride = fresh
	}
	return ride, settleErr
}

func (s *RideService) getRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	return resilience.Execute(ctx, s.executor, "ride.get", readRetries, func(ctx context.Context) (*domain.Ride, error) {
		return s.rideRepo.GetByID(ctx, rideID)
	})
}

func cancellationActor(ride *domain.Ride, req CancelRideRequest) (CancellationActor, error) {
	switch {
	case req.Admin:
		return ActorAdmin, nil
	case req.CancelledBy == ride.PassengerID:
		return ActorPassenger, nil
	case ride.HasDriver() && req.CancelledBy == ride.DriverID:
		return ActorDriver, nil
	}
	return "", ErrNotRideParticipant
}
