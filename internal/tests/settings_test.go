package tests

import (
	"context"
	"errors"
	"testing"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

func TestSettings_DefaultsWhenUnset(t *testing.T) {
	settings := service.NewSettingsService(NewMockSettingsRepository(), NewTestExecutor())

	got, err := settings.GetSchedule(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != domain.DefaultScheduleSettings() {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestSettings_SaveNotifiesListeners(t *testing.T) {
	settings := service.NewSettingsService(NewMockSettingsRepository(), NewTestExecutor())
	ctx := context.Background()

	var seen []domain.ScheduleSettings
	settings.OnChange(func(s domain.ScheduleSettings) { seen = append(seen, s) })

	want := domain.ScheduleSettings{Mode: domain.ScheduleModeManual, IntervalMinutes: 60}
	if _, err := settings.SaveSchedule(ctx, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := settings.GetSchedule(ctx)
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if len(seen) != 1 || seen[0] != want {
		t.Errorf("expected listener to see %+v, got %+v", want, seen)
	}
}

func TestSettings_RejectsInvalidSchedule(t *testing.T) {
	repo := NewMockSettingsRepository()
	settings := service.NewSettingsService(repo, NewTestExecutor())

	testCases := []domain.ScheduleSettings{
		{Mode: "hourly", IntervalMinutes: 60},
		{Mode: domain.ScheduleModeScheduled, IntervalMinutes: 0},
	}
	for _, tc := range testCases {
		_, err := settings.SaveSchedule(context.Background(), tc)
		var validation *domain.TerminalValidationError
		if !errors.As(err, &validation) {
			t.Errorf("expected validation error for %+v, got %v", tc, err)
		}
	}

	if _, found, _ := repo.GetSchedule(context.Background()); found {
		t.Error("invalid settings must not be stored")
	}
}
