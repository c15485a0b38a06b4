package domain

// ScheduleMode controls how background ledger maintenance is triggered.
type ScheduleMode string

const (
	ScheduleModeScheduled ScheduleMode = "scheduled"
	ScheduleModeManual    ScheduleMode = "manual"
)

// DefaultIntervalMinutes is used when no interval has been stored.
const DefaultIntervalMinutes = 1440

// ScheduleSettings is the key-value schedule configuration.
type ScheduleSettings struct {
	Mode            ScheduleMode
	IntervalMinutes int
}

// DefaultScheduleSettings returns the settings used when none are stored.
func DefaultScheduleSettings() ScheduleSettings {
	return ScheduleSettings{Mode: ScheduleModeScheduled, IntervalMinutes: DefaultIntervalMinutes}
}

// Validate checks the settings before they are persisted.
func (s ScheduleSettings) Validate() error {
	if s.Mode != ScheduleModeScheduled && s.Mode != ScheduleModeManual {
		return &TerminalValidationError{Field: "mode", Message: "mode must be scheduled or manual"}
	}
	if s.IntervalMinutes <= 0 {
		return &TerminalValidationError{Field: "interval_minutes", Message: "interval_minutes must be positive"}
	}
	return nil
}
