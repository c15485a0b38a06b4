package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"ridecore/internal/domain"
)

const (
	settingScheduleMode     = "schedule.mode"
	settingScheduleInterval = "schedule.interval_minutes"
)

// SettingsRepository is a PostgreSQL implementation of repository.SettingsRepository
// backed by the app_settings key-value table.
type SettingsRepository struct {
	q  Querier
	db *sql.DB
}

// NewSettingsRepository creates a new PostgreSQL settings repository.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{q: db, db: db}
}

// GetSchedule returns the stored schedule. Missing keys fall back to defaults.
func (r *SettingsRepository) GetSchedule(ctx context.Context) (domain.ScheduleSettings, bool, error) {
	settings := domain.DefaultScheduleSettings()

	rows, err := r.q.QueryContext(ctx,
		`SELECT key, value FROM app_settings WHERE key IN ($1, $2)`,
		settingScheduleMode, settingScheduleInterval,
	)
	if err != nil {
		return settings, false, err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, false, err
		}
		found = true

		switch key {
		case settingScheduleMode:
			settings.Mode = domain.ScheduleMode(value)
		case settingScheduleInterval:
			if minutes, err := strconv.Atoi(value); err == nil && minutes > 0 {
				settings.IntervalMinutes = minutes
			}
		}
	}
	if err := rows.Err(); err != nil {
		return settings, false, err
	}

	return settings, found, nil
}

// SaveSchedule upserts both schedule keys in one transaction.
func (r *SettingsRepository) SaveSchedule(ctx context.Context, settings domain.ScheduleSettings) error {
	now := time.Now().UTC()
	return inTx(ctx, r.db, r.q, func(q Querier) error {
		query := `
			INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`
		if _, err := q.ExecContext(ctx, query, settingScheduleMode, string(settings.Mode), now); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, query, settingScheduleInterval, strconv.Itoa(settings.IntervalMinutes), now)
		return err
	})
}
