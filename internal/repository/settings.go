package repository

import (
	"context"

	"ridecore/internal/domain"
)

// SettingsRepository defines the persistence operations for key-value settings.
type SettingsRepository interface {
	// GetSchedule returns the stored schedule settings; found is false when
	// neither key has been written.
	GetSchedule(ctx context.Context) (settings domain.ScheduleSettings, found bool, err error)

	// SaveSchedule upserts both schedule keys in one transaction.
	SaveSchedule(ctx context.Context, settings domain.ScheduleSettings) error
}
