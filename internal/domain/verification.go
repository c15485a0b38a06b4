package domain

import "time"

// VerificationStatus represents the state of a verification request.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
	VerificationExpired  VerificationStatus = "expired"
)

// VerificationRequest is a keyed request with at most one live pending row per subject.
type VerificationRequest struct {
	ID          string
	SubjectID   string
	Status      VerificationStatus
	Mode        string
	RequestedBy string
	ExpiresAt   time.Time
	ResolvedBy  string
	ResolvedAt  time.Time
	CreatedAt   time.Time
}

// EffectiveStatus returns the status as observed at now. Rows past their
// expiry are expired regardless of the stored status.
func (v *VerificationRequest) EffectiveStatus(now time.Time) VerificationStatus {
	if v.Status == VerificationPending && !now.Before(v.ExpiresAt) {
		return VerificationExpired
	}
	return v.Status
}

// IsLive reports whether the request still blocks new requests for its subject.
func (v *VerificationRequest) IsLive(now time.Time) bool {
	return v.EffectiveStatus(now) == VerificationPending
}
