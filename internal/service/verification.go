package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

const defaultVerificationMode = "standard"

// MaxVerificationMinutes caps expires_minutes at seven days.
const MaxVerificationMinutes = 7 * 24 * 60

// VerificationService is the idempotent request registry: a subject holds at
// most one live pending verification request at a time.
type VerificationService struct {
	repo       repository.VerificationRepository
	executor   *resilience.Executor
	defaultTTL time.Duration
	now        func() time.Time
	log        logrus.FieldLogger
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(repo repository.VerificationRepository, executor *resilience.Executor, defaultTTL time.Duration, log logrus.FieldLogger) *VerificationService {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	return &VerificationService{
		repo:       repo,
		executor:   executor,
		defaultTTL: defaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.WithField("component", "verification"),
	}
}

// CreateVerificationRequest contains the parameters for a new request.
type CreateVerificationRequest struct {
	SubjectID      string
	Mode           string
	ExpiresMinutes int
	RequestedBy    string
}

// CreateRequest registers a pending request for the subject. A live pending
// request yields *domain.ConflictError carrying its ID, including when two
// callers race and the storage constraint picks the winner.
func (s *VerificationService) CreateRequest(ctx context.Context, req CreateVerificationRequest) (*domain.VerificationRequest, error) {
	if req.SubjectID == "" {
		return nil, ErrInvalidUserID
	}
	if req.ExpiresMinutes < 0 {
		return nil, &domain.TerminalValidationError{Field: "expires_minutes", Message: "expires_minutes must not be negative"}
	}
	if req.ExpiresMinutes > MaxVerificationMinutes {
		return nil, &domain.TerminalValidationError{Field: "expires_minutes", Message: "expires_minutes must not exceed 10080 (7 days)"}
	}

	now := s.now()
	existing, err := resilience.Execute(ctx, s.executor, "verification.find_pending", readRetries, func(ctx context.Context) (*domain.VerificationRequest, error) {
		return s.repo.FindLivePending(ctx, req.SubjectID, now)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &domain.ConflictError{
			Resource:   "verification_request",
			ExistingID: existing.ID,
			Message:    "a pending verification request already exists for this user",
		}
	}

	ttl := s.defaultTTL
	if req.ExpiresMinutes > 0 {
		ttl = time.Duration(req.ExpiresMinutes) * time.Minute
	}
	mode := req.Mode
	if mode == "" {
		mode = defaultVerificationMode
	}

	request := &domain.VerificationRequest{
		ID:          uuid.New().String(),
		SubjectID:   req.SubjectID,
		Status:      domain.VerificationPending,
		Mode:        mode,
		RequestedBy: req.RequestedBy,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	// A retried insert that already landed surfaces as a conflict on itself.
	err = s.executor.Run(ctx, "verification.insert", noRetry, func(ctx context.Context) error {
		return s.repo.Insert(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"request_id": request.ID, "subject_id": request.SubjectID}).Info("verification request created")
	return request, nil
}

// GetRequest retrieves a request with its status as observed now.
func (s *VerificationService) GetRequest(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	if id == "" {
		return nil, &domain.TerminalValidationError{Field: "id", Message: "request id is required"}
	}

	req, err := resilience.Execute(ctx, s.executor, "verification.get", readRetries, func(ctx context.Context) (*domain.VerificationRequest, error) {
		return s.repo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	req.Status = req.EffectiveStatus(s.now())
	return req, nil
}

// Resolve approves or rejects a live pending request.
func (s *VerificationService) Resolve(ctx context.Context, id string, status domain.VerificationStatus, verifier string) (*domain.VerificationRequest, error) {
	if status != domain.VerificationApproved && status != domain.VerificationRejected {
		return nil, ErrInvalidVerificationStatus
	}

	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case domain.VerificationExpired:
		return nil, ErrVerificationExpired
	case domain.VerificationPending:
	default:
		return nil, ErrVerificationResolved
	}

	at := s.now()
	err = s.executor.Run(ctx, "verification.resolve", noRetry, func(ctx context.Context) error {
		return s.repo.Resolve(ctx, id, status, verifier, at)
	})
	if errors.Is(err, repository.ErrStaleState) {
		if !at.Before(req.ExpiresAt) {
			return nil, ErrVerificationExpired
		}
		return nil, ErrVerificationResolved
	}
	if err != nil {
		return nil, err
	}

	req.Status = status
	req.ResolvedBy = verifier
	req.ResolvedAt = at
	return req, nil
}
