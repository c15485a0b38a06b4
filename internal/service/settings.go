package service

import (
	"context"
	"sync"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

// SettingsService reads and writes the maintenance schedule.
type SettingsService struct {
	repo     repository.SettingsRepository
	executor *resilience.Executor

	mu        sync.Mutex
	listeners []func(domain.ScheduleSettings)
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(repo repository.SettingsRepository, executor *resilience.Executor) *SettingsService {
	return &SettingsService{repo: repo, executor: executor}
}

// OnChange registers fn to be called after the schedule is saved.
func (s *SettingsService) OnChange(fn func(domain.ScheduleSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// GetSchedule returns the stored schedule, or the defaults when none is stored.
func (s *SettingsService) GetSchedule(ctx context.Context) (domain.ScheduleSettings, error) {
	settings, err := resilience.Execute(ctx, s.executor, "settings.get", readRetries, func(ctx context.Context) (domain.ScheduleSettings, error) {
		settings, found, err := s.repo.GetSchedule(ctx)
		if err != nil {
			return domain.ScheduleSettings{}, err
		}
		if !found {
			return domain.DefaultScheduleSettings(), nil
		}
		return settings, nil
	})
	if err != nil {
		return domain.ScheduleSettings{}, err
	}
	return settings, nil
}

// SaveSchedule validates and stores the schedule.
func (s *SettingsService) SaveSchedule(ctx context.Context, settings domain.ScheduleSettings) (domain.ScheduleSettings, error) {
	if err := settings.Validate(); err != nil {
		return domain.ScheduleSettings{}, err
	}

	err := s.executor.Run(ctx, "settings.save", idempotentWriteRetries, func(ctx context.Context) error {
		return s.repo.SaveSchedule(ctx, settings)
	})
	if err != nil {
		return domain.ScheduleSettings{}, err
	}

	s.mu.Lock()
	listeners := append([]func(domain.ScheduleSettings){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(settings)
	}

	return settings, nil
}
