package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/metrics"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

// Settlement steps recorded on reconciliation flags.
const (
	StepPassengerPayment    = "passenger_payment"
	StepDriverEarning       = "driver_earning"
	StepDriverCompensation  = "driver_compensation"
	StepDriverCashCollected = "driver_cash_collected"
)

// Settler settles the money movements of a terminal ride.
type Settler interface {
	Settle(ctx context.Context, rideID string) error
}

// Ensure SettlementService implements Settler.
var _ Settler = (*SettlementService)(nil)

// SettlementConfig holds the money-split rules.
type SettlementConfig struct {
	CommissionRate    decimal.Decimal // platform share of a fare
	CancellationShare decimal.Decimal // driver share of a cancellation fee
	LockTTL           time.Duration
	RedriveBatchSize  int
}

// SettlementService turns terminal rides into ledger entries.
type SettlementService struct {
	rideRepo            repository.RideRepository
	reconciliationRepo  repository.ReconciliationRepository
	wallets             *WalletService
	lockStore           redis.LockStoreInterface
	executor            *resilience.Executor
	notificationService *NotificationService
	cfg                 SettlementConfig
	log                 logrus.FieldLogger
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(
	rideRepo repository.RideRepository,
	reconciliationRepo repository.ReconciliationRepository,
	wallets *WalletService,
	lockStore redis.LockStoreInterface,
	executor *resilience.Executor,
	notificationService *NotificationService,
	cfg SettlementConfig,
	log logrus.FieldLogger,
) *SettlementService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.RedriveBatchSize <= 0 {
		cfg.RedriveBatchSize = 100
	}
	return &SettlementService{
		rideRepo:            rideRepo,
		reconciliationRepo:  reconciliationRepo,
		wallets:             wallets,
		lockStore:           lockStore,
		executor:            executor,
		notificationService: notificationService,
		cfg:                 cfg,
		log:                 log.WithField("component", "settlement"),
	}
}

// Split returns the platform commission and the driver share of fare.
func (s *SettlementService) Split(fare decimal.Decimal) (commission, driverShare decimal.Decimal) {
	commission = fare.Mul(s.cfg.CommissionRate).Round(2)
	return commission, fare.Sub(commission)
}

// Settle applies the ledger entries owed for a terminal ride. Settling a
// settled ride is a no-op; every entry is keyed by the ride so a repeated
// or concurrent call never duplicates money movements.
func (s *SettlementService) Settle(ctx context.Context, rideID string) error {
	if rideID == "" {
		return ErrInvalidRideID
	}

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return err
	}
	if done, err := settlementDone(ride); done || err != nil {
		return err
	}
	if !ride.Status.IsTerminal() {
		return ErrRideNotSettleable
	}

	release, err := s.lock(ctx, rideID)
	if err != nil {
		return err
	}
	defer release()

	// Another worker may have finished while we waited for the lock.
	ride, err = s.getRide(ctx, rideID)
	if err != nil {
		return err
	}
	if done, err := settlementDone(ride); done || err != nil {
		return err
	}

	switch {
	case ride.Status == domain.RideStatusCancelled:
		err = s.settleCancellation(ctx, ride)
	case ride.PaymentMethod == domain.PaymentMethodCash:
		err = s.settleCash(ctx, ride)
	case ride.PaymentMethod == domain.PaymentMethodWallet:
		err = s.settleWallet(ctx, ride)
	case ride.PaymentMethod == domain.PaymentMethodExternal:
		return s.markSettlement(ctx, ride, domain.SettlementAwaitingProcessor, "")
	default:
		return ErrInvalidPaymentMethod
	}
	if err != nil {
		return err
	}

	return s.markSettlement(ctx, ride, domain.SettlementSettled, "")
}

// ConfirmExternalPayment records a processor-confirmed payment for a ride
// paid by external checkout: a recharge keyed by the processor transaction,
// the ride payment and the driver earning.
func (s *SettlementService) ConfirmExternalPayment(ctx context.Context, rideID, transactionID string, amount decimal.Decimal) error {
	if rideID == "" {
		return ErrInvalidRideID
	}
	if transactionID == "" {
		return &domain.TerminalValidationError{Field: "transaction_id", Message: "transaction id is required"}
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	release, err := s.lock(ctx, rideID)
	if err != nil {
		return err
	}
	defer release()

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.SettlementStatus == domain.SettlementSettled {
		return nil
	}
	if ride.SettlementStatus == domain.SettlementReconciliationRequired {
		return ErrSettlementNeedsReconciliation
	}
	if ride.Status != domain.RideStatusCompleted || ride.PaymentMethod != domain.PaymentMethodExternal {
		return ErrRideNotAwaitingPayment
	}

	_, err = s.wallets.Adjust(ctx, AdjustRequest{
		UserID:      ride.PassengerID,
		Amount:      amount,
		Type:        domain.EntryRecharge,
		Reason:      "external payment " + transactionID,
		ReferenceID: transactionID,
	})
	if err != nil {
		return err
	}

	if err := s.chargePassenger(ctx, ride, StepPassengerPayment, true); err != nil {
		return err
	}
	if err := s.creditDriver(ctx, ride); err != nil {
		return err
	}

	return s.markSettlement(ctx, ride, domain.SettlementSettled, transactionID)
}

// RedriveReport summarizes one re-drive pass.
type RedriveReport struct {
	Attempted int `json:"attempted"`
	Settled   int `json:"settled"`
	Failed    int `json:"failed"`
}

// RedrivePending retries settlement of rides left pending by an earlier
// failure. Rides flagged for reconciliation are never picked up.
func (s *SettlementService) RedrivePending(ctx context.Context) (*RedriveReport, error) {
	rides, err := resilience.Execute(ctx, s.executor, "settlement.list_pending", readRetries, func(ctx context.Context) ([]*domain.Ride, error) {
		return s.rideRepo.ListBySettlementStatus(ctx, domain.SettlementPending, s.cfg.RedriveBatchSize)
	})
	if err != nil {
		return nil, err
	}

	report := &RedriveReport{}
	for _, ride := range rides {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		if err := s.Settle(ctx, ride.ID); err != nil {
			report.Failed++
			s.log.WithError(err).WithField("ride_id", ride.ID).Warn("settlement re-drive failed")
			continue
		}
		report.Settled++
	}

	s.log.WithFields(logrus.Fields{
		"attempted": report.Attempted,
		"settled":   report.Settled,
		"failed":    report.Failed,
	}).Info("settlement re-drive finished")
	return report, nil
}

// settleCash credits the driver their commission-adjusted share as an
// earning, then debits the cash they kept in hand as a fee, so the wallet
// nets to what the platform owes the driver or is owed by them. The
// passenger gets no ledger entry, only a cash settlement note.
func (s *SettlementService) settleCash(ctx context.Context, ride *domain.Ride) error {
	fare := rideFare(ride)
	_, driverShare := s.Split(fare)

	cash := fare
	if ride.DriverCashReceived != nil {
		cash = *ride.DriverCashReceived
	}

	if ride.HasDriver() && driverShare.IsPositive() {
		_, err := s.wallets.Adjust(ctx, AdjustRequest{
			UserID:      ride.DriverID,
			Amount:      driverShare,
			Type:        domain.EntryEarning,
			Reason:      "earning for cash ride " + ride.ID,
			ReferenceID: ride.ID,
		})
		if err != nil {
			return err
		}

		if cash.IsPositive() {
			_, err = s.wallets.Adjust(ctx, AdjustRequest{
				UserID:      ride.DriverID,
				Amount:      cash.Neg(),
				Type:        domain.EntryFee,
				Reason:      "cash collected in hand for ride " + ride.ID,
				ReferenceID: ride.ID,
			})
			if err != nil {
				return s.partialFailure(ctx, ride, StepDriverCashCollected, err)
			}
		}
	}

	if s.notificationService != nil {
		s.notificationService.NotifyCashSettled(ctx, ride, cash)
	}
	return nil
}

// settleWallet debits the passenger and credits the driver.
func (s *SettlementService) settleWallet(ctx context.Context, ride *domain.Ride) error {
	if err := s.chargePassenger(ctx, ride, StepPassengerPayment, false); err != nil {
		return err
	}
	return s.creditDriver(ctx, ride)
}

// settleCancellation charges the passenger the cancellation fee and passes
// the configured share on to the driver.
func (s *SettlementService) settleCancellation(ctx context.Context, ride *domain.Ride) error {
	fee := ride.CancellationFee
	if !fee.IsPositive() {
		return nil
	}

	_, err := s.wallets.Adjust(ctx, AdjustRequest{
		UserID:      ride.PassengerID,
		Amount:      fee.Neg(),
		Type:        domain.EntryPenalty,
		Reason:      "cancellation fee for ride " + ride.ID,
		ReferenceID: ride.ID,
	})
	if err != nil {
		return err
	}

	compensation := fee.Mul(s.cfg.CancellationShare).Round(2)
	if !compensation.IsPositive() || !ride.HasDriver() {
		return nil
	}

	_, err = s.wallets.Adjust(ctx, AdjustRequest{
		UserID:      ride.DriverID,
		Amount:      compensation,
		Type:        domain.EntryEarning,
		Reason:      "cancellation compensation for ride " + ride.ID,
		ReferenceID: ride.ID,
	})
	if err != nil {
		return s.partialFailure(ctx, ride, StepDriverCompensation, err)
	}
	return nil
}

// chargePassenger writes the ride payment. After an earlier entry of the same
// settlement has been applied, any failure is a partial failure.
func (s *SettlementService) chargePassenger(ctx context.Context, ride *domain.Ride, step string, afterEarlierEntry bool) error {
	fare := rideFare(ride)
	if !fare.IsPositive() {
		return nil
	}

	_, err := s.wallets.Adjust(ctx, AdjustRequest{
		UserID:      ride.PassengerID,
		Amount:      fare.Neg(),
		Type:        domain.EntryPayment,
		Reason:      "payment for ride " + ride.ID,
		ReferenceID: ride.ID,
	})
	if err == nil {
		return nil
	}
	if afterEarlierEntry {
		return s.partialFailure(ctx, ride, step, err)
	}

	var funds *domain.InsufficientFundsError
	if errors.As(err, &funds) {
		// Nothing was written, but the ride happened and the debt needs an operator.
		s.flag(ctx, ride, step, err)
		return err
	}
	return err
}

// creditDriver writes the driver earning once the passenger has paid.
func (s *SettlementService) creditDriver(ctx context.Context, ride *domain.Ride) error {
	_, driverShare := s.Split(rideFare(ride))
	if !driverShare.IsPositive() || !ride.HasDriver() {
		return nil
	}

	_, err := s.wallets.Adjust(ctx, AdjustRequest{
		UserID:      ride.DriverID,
		Amount:      driverShare,
		Type:        domain.EntryEarning,
		Reason:      "earning for ride " + ride.ID,
		ReferenceID: ride.ID,
	})
	if err != nil {
		return s.partialFailure(ctx, ride, StepDriverEarning, err)
	}
	return nil
}

func (s *SettlementService) partialFailure(ctx context.Context, ride *domain.Ride, step string, err error) error {
	s.flag(ctx, ride, step, err)
	return &domain.SettlementPartialFailureError{RideID: ride.ID, Step: step, Err: err}
}

// flag records a reconciliation flag, moves the ride out of automatic
// settlement and publishes the event. Failures here are logged only.
func (s *SettlementService) flag(ctx context.Context, ride *domain.Ride, step string, cause error) {
	flag := &domain.ReconciliationFlag{
		ID:        uuid.New().String(),
		RideID:    ride.ID,
		Step:      step,
		Detail:    cause.Error(),
		CreatedAt: time.Now().UTC(),
	}

	log := s.log.WithFields(logrus.Fields{"ride_id": ride.ID, "step": step})

	err := s.executor.Run(ctx, "settlement.flag", idempotentWriteRetries, func(ctx context.Context) error {
		return s.reconciliationRepo.Flag(ctx, flag)
	})
	if err != nil {
		log.WithError(err).Error("failed to record reconciliation flag")
	}

	if err := s.markSettlement(ctx, ride, domain.SettlementReconciliationRequired, ""); err != nil {
		log.WithError(err).Error("failed to mark ride for reconciliation")
	}

	if s.notificationService != nil {
		s.notificationService.NotifyReconciliationRequired(ctx, flag)
	}

	log.WithError(cause).Error("settlement requires reconciliation")
}

func (s *SettlementService) markSettlement(ctx context.Context, ride *domain.Ride, status domain.SettlementStatus, externalRef string) error {
	err := s.executor.Run(ctx, "settlement.update_status", idempotentWriteRetries, func(ctx context.Context) error {
		return s.rideRepo.UpdateSettlement(ctx, ride.ID, status, externalRef)
	})
	if err != nil {
		return err
	}

	ride.SettlementStatus = status
	if externalRef != "" {
		ride.ExternalPaymentRef = externalRef
	}
	metrics.Settlements.WithLabelValues(string(ride.PaymentMethod), string(status)).Inc()
	return nil
}

func (s *SettlementService) getRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	return resilience.Execute(ctx, s.executor, "ride.get", readRetries, func(ctx context.Context) (*domain.Ride, error) {
		return s.rideRepo.GetByID(ctx, rideID)
	})
}

// lock takes the settlement lock of a ride. Without a lock store the
// reference-keyed entries alone keep settlement idempotent.
func (s *SettlementService) lock(ctx context.Context, rideID string) (func(), error) {
	if s.lockStore == nil {
		return func() {}, nil
	}

	token, err := resilience.Execute(ctx, s.executor, "settlement.lock", readRetries, func(ctx context.Context) (string, error) {
		return s.lockStore.AcquireSettlementLock(ctx, rideID, s.cfg.LockTTL)
	})
	if err != nil {
		return nil, fmt.Errorf("acquire settlement lock: %w", err)
	}
	if token == "" {
		return nil, ErrSettlementInProgress
	}

	return func() {
		if err := s.lockStore.ReleaseSettlementLock(context.WithoutCancel(ctx), rideID, token); err != nil {
			s.log.WithError(err).WithField("ride_id", rideID).Warn("failed to release settlement lock")
		}
	}, nil
}

// settlementDone reports whether a ride needs no further automatic settlement.
func settlementDone(ride *domain.Ride) (bool, error) {
	switch ride.SettlementStatus {
	case domain.SettlementSettled, domain.SettlementNone, domain.SettlementAwaitingProcessor:
		return true, nil
	case domain.SettlementReconciliationRequired:
		return true, ErrSettlementNeedsReconciliation
	}
	return false, nil
}

func rideFare(ride *domain.Ride) decimal.Decimal {
	if ride.FareActual != nil {
		return *ride.FareActual
	}
	return ride.FareEstimated
}
