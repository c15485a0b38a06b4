package domain

import "time"

// ReconciliationFlag records a settlement that stopped half-applied.
// Flags are resolved by an operator; nothing retries them automatically.
type ReconciliationFlag struct {
	ID         string
	RideID     string
	Step       string
	Detail     string
	CreatedAt  time.Time
	ResolvedBy string
	ResolvedAt time.Time
}

// IsOpen reports whether the flag still awaits an operator.
func (f *ReconciliationFlag) IsOpen() bool {
	return f.ResolvedAt.IsZero()
}
