package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

// DriverService handles driver registration and availability.
type DriverService struct {
	driverRepo repository.DriverRepository
	executor   *resilience.Executor
}

// NewDriverService creates a new DriverService.
func NewDriverService(driverRepo repository.DriverRepository, executor *resilience.Executor) *DriverService {
	return &DriverService{
		driverRepo: driverRepo,
		executor:   executor,
	}
}

// RegisterDriverRequest contains the parameters for registering a driver.
type RegisterDriverRequest struct {
	Name  string
	Phone string
}

// RegisterDriver creates an offline driver.
func (s *DriverService) RegisterDriver(ctx context.Context, req RegisterDriverRequest) (*domain.Driver, error) {
	if req.Name == "" {
		return nil, &domain.TerminalValidationError{Field: "name", Message: "name is required"}
	}

	driver := &domain.Driver{
		ID:     uuid.New().String(),
		Name:   req.Name,
		Phone:  req.Phone,
		Status: domain.DriverStatusOffline,
	}

	err := s.executor.Run(ctx, "driver.create", noRetry, func(ctx context.Context) error {
		return s.driverRepo.Create(ctx, driver)
	})
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// GetDriver retrieves a driver.
func (s *DriverService) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return resilience.Execute(ctx, s.executor, "driver.get", readRetries, func(ctx context.Context) (*domain.Driver, error) {
		return s.driverRepo.GetByID(ctx, driverID)
	})
}

// SetAvailability switches a driver between ONLINE and OFFLINE. A driver
// holding a ride stays ON_TRIP until the ride ends.
func (s *DriverService) SetAvailability(ctx context.Context, driverID string, status domain.DriverStatus) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	if status != domain.DriverStatusOnline && status != domain.DriverStatusOffline {
		return &domain.TerminalValidationError{Field: "status", Message: "status must be ONLINE or OFFLINE"}
	}

	err := s.executor.Run(ctx, "driver.update_status", idempotentWriteRetries, func(ctx context.Context) error {
		return s.driverRepo.UpdateStatus(ctx, driverID, status)
	})
	if errors.Is(err, repository.ErrDriverUnavailable) {
		return ErrDriverHasActiveRide
	}
	return err
}

// ListDrivers retrieves all drivers.
func (s *DriverService) ListDrivers(ctx context.Context) ([]*domain.Driver, error) {
	return resilience.Execute(ctx, s.executor, "driver.list", readRetries, func(ctx context.Context) ([]*domain.Driver, error) {
		return s.driverRepo.GetAll(ctx)
	})
}
