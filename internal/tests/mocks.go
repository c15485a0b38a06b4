package tests

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/events"
	"ridecore/internal/redis"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
	"ridecore/internal/service"
)

// ──────────────────────────────────────────────
// SHARED HELPERS
// ──────────────────────────────────────────────

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// NewTestExecutor returns an executor that retries without sleeping.
func NewTestExecutor() *resilience.Executor {
	return resilience.NewExecutor(
		resilience.Policy{BaseDelay: time.Millisecond, Multiplier: 2, MaxRetries: 5},
		resilience.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver

	// Counters for verification
	CreateCallCount       int32
	UpdateStatusCallCount int32

	// Error injection
	CreateError       error
	UpdateStatusError error
}

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		drivers: make(map[string]*domain.Driver),
	}
}

// AddDriver adds a driver to the mock repository.
func (m *MockDriverRepository) AddDriver(driver *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
}

func (m *MockDriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
	return nil
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *driver
	return &clone, nil
}

func (m *MockDriverRepository) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	drivers := make([]*domain.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		clone := *d
		drivers = append(drivers, &clone)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].ID < drivers[j].ID })
	return drivers, nil
}

func (m *MockDriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	if driver.ActiveRideID != "" {
		return repository.ErrDriverUnavailable
	}
	driver.Status = status
	return nil
}

// bind marks the driver as holding rideID. Mirrors the driver update done in
// the same transaction as a ride transition.
func (m *MockDriverRepository) bind(driverID, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[driverID]
	if !ok {
		return nil
	}
	if driver.ActiveRideID != "" && driver.ActiveRideID != rideID {
		return repository.ErrDriverUnavailable
	}
	driver.ActiveRideID = rideID
	driver.Status = domain.DriverStatusOnTrip
	return nil
}

func (m *MockDriverRepository) release(driverID, rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if driver, ok := m.drivers[driverID]; ok && driver.ActiveRideID == rideID {
		driver.ActiveRideID = ""
		driver.Status = domain.DriverStatusOnline
	}
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository. Transitions
// are compare-and-set on the stored status.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Drivers, when set, receives the availability update of every transition.
	Drivers *MockDriverRepository

	// BeforeApply runs before the compare-and-set, outside the lock. Tests use
	// it to simulate a concurrent writer.
	BeforeApply func(ride *domain.Ride)

	ApplyTransitionCallCount int32

	CreateError           error
	UpdateSettlementError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *ride
	m.rides[ride.ID] = &clone
}

// SetStatus overwrites the stored status.
func (m *MockRideRepository) SetStatus(rideID string, status domain.RideStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ride, ok := m.rides[rideID]; ok {
		ride.Status = status
	}
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.AddRide(ride)
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *ride
	return &clone, nil
}

func (m *MockRideRepository) ApplyTransition(ctx context.Context, ride *domain.Ride, from domain.RideStatus) error {
	atomic.AddInt32(&m.ApplyTransitionCallCount, 1)
	if m.BeforeApply != nil {
		m.BeforeApply(ride)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != from {
		return repository.ErrStaleState
	}

	if m.Drivers != nil && ride.HasDriver() {
		if ride.Status.IsTerminal() {
			m.Drivers.release(ride.DriverID, ride.ID)
		} else if err := m.Drivers.bind(ride.DriverID, ride.ID); err != nil {
			return err
		}
	}

	clone := *ride
	m.rides[ride.ID] = &clone
	return nil
}

func (m *MockRideRepository) UpdateSettlement(ctx context.Context, rideID string, status domain.SettlementStatus, externalRef string) error {
	if m.UpdateSettlementError != nil {
		return m.UpdateSettlementError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[rideID]
	if !ok {
		return repository.ErrNotFound
	}
	ride.SettlementStatus = status
	if externalRef != "" {
		ride.ExternalPaymentRef = externalRef
	}
	return nil
}

func (m *MockRideRepository) GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ride := range m.rides {
		if ride.DriverID == driverID && !ride.Status.IsTerminal() {
			clone := *ride
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *MockRideRepository) ListBySettlementStatus(ctx context.Context, status domain.SettlementStatus, limit int) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rides []*domain.Ride
	for _, ride := range m.rides {
		if ride.SettlementStatus == status && ride.Status.IsTerminal() {
			clone := *ride
			rides = append(rides, &clone)
		}
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].ID < rides[j].ID })
	if limit > 0 && len(rides) > limit {
		rides = rides[:limit]
	}
	return rides, nil
}

// ──────────────────────────────────────────────
// MOCK WALLET REPOSITORY
// ──────────────────────────────────────────────

// MockWalletRepository is an in-memory ledger that keeps the same invariants
// as the Postgres implementation: a zero initialization entry per wallet,
// a running balance on every entry, one entry per (wallet, reference, type)
// and no overdraft for payment and withdrawal entries.
type MockWalletRepository struct {
	mu          sync.Mutex
	wallets     map[string]*domain.Wallet // by user ID
	entries     map[string][]*domain.LedgerEntry
	withdrawals map[string]*domain.Withdrawal

	// FailAdjust, when set, is consulted before every adjustment. A non-nil
	// error is returned without writing.
	FailAdjust func(p repository.AdjustParams) error

	AdjustCallCount int32
}

// NewMockWalletRepository creates a new mock wallet repository.
func NewMockWalletRepository() *MockWalletRepository {
	return &MockWalletRepository{
		wallets:     make(map[string]*domain.Wallet),
		entries:     make(map[string][]*domain.LedgerEntry),
		withdrawals: make(map[string]*domain.Withdrawal),
	}
}

// Fund credits userID with a recharge entry.
func (m *MockWalletRepository) Fund(userID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, _ = m.adjust(repository.AdjustParams{UserID: userID, Amount: amount, Type: domain.EntryRecharge, Reason: "test funding"})
}

// Balance returns the stored balance of userID, zero when no wallet exists.
func (m *MockWalletRepository) Balance(userID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[userID]; ok {
		return w.Balance
	}
	return decimal.Zero
}

// EntriesFor returns the non-initialization entries of userID, oldest first.
func (m *MockWalletRepository) EntriesFor(userID string) []*domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil
	}
	var out []*domain.LedgerEntry
	for _, e := range m.entries[w.ID] {
		if e.Type != domain.EntryInitialization {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out
}

// Corrupt overwrites the stored balance without writing an entry.
func (m *MockWalletRepository) Corrupt(userID string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[userID]; ok {
		w.Balance = balance
	}
}

func (m *MockWalletRepository) ensure(userID string) *domain.Wallet {
	if w, ok := m.wallets[userID]; ok {
		return w
	}
	now := time.Now().UTC()
	w := &domain.Wallet{ID: uuid.New().String(), UserID: userID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	m.wallets[userID] = w
	m.entries[w.ID] = []*domain.LedgerEntry{{
		ID:           uuid.New().String(),
		WalletID:     w.ID,
		Amount:       decimal.Zero,
		Type:         domain.EntryInitialization,
		BalanceAfter: decimal.Zero,
		Reason:       "wallet created",
		CreatedAt:    now,
	}}
	return w
}

func (m *MockWalletRepository) adjust(p repository.AdjustParams) (*domain.LedgerEntry, bool, error) {
	w := m.ensure(p.UserID)

	if p.ReferenceID != "" {
		for _, e := range m.entries[w.ID] {
			if e.ReferenceID == p.ReferenceID && e.Type == p.Type {
				clone := *e
				return &clone, false, nil
			}
		}
	}

	next := w.Balance.Add(p.Amount)
	if p.Type.RequiresFunds() && p.Amount.IsNegative() && next.IsNegative() {
		return nil, false, &domain.InsufficientFundsError{UserID: p.UserID, Available: w.Balance, Requested: p.Amount.Neg()}
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.New().String(),
		WalletID:     w.ID,
		Amount:       p.Amount,
		Type:         p.Type,
		BalanceAfter: next,
		ReferenceID:  p.ReferenceID,
		Reason:       p.Reason,
		CreatedAt:    time.Now().UTC(),
	}
	m.entries[w.ID] = append(m.entries[w.ID], entry)
	w.Balance = next
	w.UpdatedAt = entry.CreatedAt

	clone := *entry
	return &clone, true, nil
}

func (m *MockWalletRepository) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *m.ensure(userID)
	return &clone, nil
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *w
	return &clone, nil
}

func (m *MockWalletRepository) Adjust(ctx context.Context, p repository.AdjustParams) (*domain.LedgerEntry, bool, error) {
	atomic.AddInt32(&m.AdjustCallCount, 1)
	if m.FailAdjust != nil {
		if err := m.FailAdjust(p); err != nil {
			return nil, false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjust(p)
}

func (m *MockWalletRepository) History(ctx context.Context, walletID string, limit int) ([]*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[walletID]
	var out []*domain.LedgerEntry
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *entries[i]
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockWalletRepository) Entries(ctx context.Context, walletID string) ([]*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LedgerEntry
	for _, e := range m.entries[walletID] {
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockWalletRepository) ListWallets(ctx context.Context) ([]*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Wallet
	for _, w := range m.wallets {
		clone := *w
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MockWalletRepository) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.ensure(userID)

	pending := decimal.Zero
	for _, wd := range m.withdrawals {
		if wd.WalletID == w.ID && wd.Status == domain.WithdrawalPending {
			pending = pending.Add(wd.Amount)
		}
	}
	available := w.Balance.Sub(pending)
	if amount.GreaterThan(available) {
		return nil, &domain.InsufficientFundsError{UserID: userID, Available: available, Requested: amount}
	}

	wd := &domain.Withdrawal{
		ID:        uuid.New().String(),
		WalletID:  w.ID,
		UserID:    userID,
		Amount:    amount,
		Status:    domain.WithdrawalPending,
		CreatedAt: time.Now().UTC(),
	}
	m.withdrawals[wd.ID] = wd
	clone := *wd
	return &clone, nil
}

func (m *MockWalletRepository) GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wd, ok := m.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *wd
	return &clone, nil
}

func (m *MockWalletRepository) CompleteWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, *domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wd, ok := m.withdrawals[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	if wd.Status == domain.WithdrawalRejected {
		return nil, nil, repository.ErrStaleState
	}

	entry, _, err := m.adjust(repository.AdjustParams{
		UserID:      wd.UserID,
		Amount:      wd.Amount.Neg(),
		Type:        domain.EntryWithdrawal,
		Reason:      "withdrawal " + wd.ID,
		ReferenceID: wd.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	if wd.Status == domain.WithdrawalPending {
		wd.Status = domain.WithdrawalCompleted
		wd.SettledAt = time.Now().UTC()
	}
	clone := *wd
	return &clone, entry, nil
}

func (m *MockWalletRepository) RejectWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wd, ok := m.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if wd.Status != domain.WithdrawalPending {
		return nil, repository.ErrStaleState
	}
	wd.Status = domain.WithdrawalRejected
	wd.SettledAt = time.Now().UTC()
	clone := *wd
	return &clone, nil
}

// ──────────────────────────────────────────────
// MOCK RECONCILIATION REPOSITORY
// ──────────────────────────────────────────────

// MockReconciliationRepository is a mock implementation of ReconciliationRepository.
type MockReconciliationRepository struct {
	mu    sync.Mutex
	flags []*domain.ReconciliationFlag
}

// NewMockReconciliationRepository creates a new mock reconciliation repository.
func NewMockReconciliationRepository() *MockReconciliationRepository {
	return &MockReconciliationRepository{}
}

func (m *MockReconciliationRepository) Flag(ctx context.Context, flag *domain.ReconciliationFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.flags {
		if f.RideID == flag.RideID && f.Step == flag.Step {
			return nil
		}
	}
	clone := *flag
	m.flags = append(m.flags, &clone)
	return nil
}

func (m *MockReconciliationRepository) ListOpen(ctx context.Context) ([]*domain.ReconciliationFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ReconciliationFlag
	for _, f := range m.flags {
		if f.IsOpen() {
			clone := *f
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *MockReconciliationRepository) Resolve(ctx context.Context, id, resolvedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.flags {
		if f.ID == id && f.IsOpen() {
			f.ResolvedBy = resolvedBy
			f.ResolvedAt = time.Now().UTC()
			return nil
		}
	}
	return repository.ErrNotFound
}

// ──────────────────────────────────────────────
// MOCK VERIFICATION REPOSITORY
// ──────────────────────────────────────────────

// MockVerificationRepository keeps at most one live pending request per
// subject, like the partial unique index in Postgres.
type MockVerificationRepository struct {
	mu       sync.Mutex
	requests map[string]*domain.VerificationRequest

	// HideLivePending makes FindLivePending report nothing, so the conflict
	// can only be caught by Insert.
	HideLivePending bool
}

// NewMockVerificationRepository creates a new mock verification repository.
func NewMockVerificationRepository() *MockVerificationRepository {
	return &MockVerificationRepository{requests: make(map[string]*domain.VerificationRequest)}
}

func (m *MockVerificationRepository) livePending(subjectID string, now time.Time) *domain.VerificationRequest {
	for _, r := range m.requests {
		if r.SubjectID == subjectID && r.IsLive(now) {
			return r
		}
	}
	return nil
}

func (m *MockVerificationRepository) FindLivePending(ctx context.Context, subjectID string, now time.Time) (*domain.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HideLivePending {
		return nil, nil
	}
	if r := m.livePending(subjectID, now); r != nil {
		clone := *r
		return &clone, nil
	}
	return nil, nil
}

func (m *MockVerificationRepository) Insert(ctx context.Context, req *domain.VerificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.SubjectID == req.SubjectID && r.Status == domain.VerificationPending && !req.CreatedAt.Before(r.ExpiresAt) {
			r.Status = domain.VerificationExpired
		}
	}
	if existing := m.livePending(req.SubjectID, req.CreatedAt); existing != nil {
		return &domain.ConflictError{Resource: "verification_request", ExistingID: existing.ID}
	}
	clone := *req
	m.requests[req.ID] = &clone
	return nil
}

func (m *MockVerificationRepository) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (m *MockVerificationRepository) Resolve(ctx context.Context, id string, status domain.VerificationStatus, resolvedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status != domain.VerificationPending || !at.Before(r.ExpiresAt) {
		return repository.ErrStaleState
	}
	r.Status = status
	r.ResolvedBy = resolvedBy
	r.ResolvedAt = at
	return nil
}

// ──────────────────────────────────────────────
// MOCK SETTINGS REPOSITORY
// ──────────────────────────────────────────────

// MockSettingsRepository is a mock implementation of SettingsRepository.
type MockSettingsRepository struct {
	mu       sync.Mutex
	settings *domain.ScheduleSettings

	SaveError error
}

// NewMockSettingsRepository creates a new mock settings repository.
func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{}
}

func (m *MockSettingsRepository) GetSchedule(ctx context.Context) (domain.ScheduleSettings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return domain.ScheduleSettings{}, false, nil
	}
	return *m.settings, true, nil
}

func (m *MockSettingsRepository) SaveSchedule(ctx context.Context, settings domain.ScheduleSettings) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &settings
	return nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT PREFERENCE REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentPreferenceRepository is a mock implementation of PaymentPreferenceRepository.
type MockPaymentPreferenceRepository struct {
	mu    sync.Mutex
	prefs map[string]*domain.PaymentPreference
}

// NewMockPaymentPreferenceRepository creates a new mock preference repository.
func NewMockPaymentPreferenceRepository() *MockPaymentPreferenceRepository {
	return &MockPaymentPreferenceRepository{prefs: make(map[string]*domain.PaymentPreference)}
}

func (m *MockPaymentPreferenceRepository) Create(ctx context.Context, pref *domain.PaymentPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prefs {
		if p.Reference == pref.Reference {
			return fmt.Errorf("duplicate reference %s", pref.Reference)
		}
	}
	clone := *pref
	m.prefs[pref.ID] = &clone
	return nil
}

func (m *MockPaymentPreferenceRepository) GetByID(ctx context.Context, id string) (*domain.PaymentPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *MockPaymentPreferenceRepository) GetByReference(ctx context.Context, reference string) (*domain.PaymentPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prefs {
		if p.Reference == reference {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *MockPaymentPreferenceRepository) MarkConfirmed(ctx context.Context, id, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = domain.PreferenceStatusConfirmed
	p.TransactionID = transactionID
	return nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory settlement lock.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string

	AcquireCallCount int32
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

// Hold takes the lock for rideID on behalf of another worker.
func (m *MockLockStore) Hold(rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[rideID] = "other-worker"
}

func (m *MockLockStore) AcquireSettlementLock(ctx context.Context, rideID string, ttl time.Duration) (string, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[rideID]; held {
		return "", nil
	}
	token := uuid.New().String()
	m.locks[rideID] = token
	return token, nil
}

func (m *MockLockStore) ReleaseSettlementLock(ctx context.Context, rideID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[rideID] != token {
		return redis.ErrLockNotHeld
	}
	delete(m.locks, rideID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT PROCESSOR
// ──────────────────────────────────────────────

// MockProcessor is a scripted payment processor.
type MockProcessor struct {
	mu sync.Mutex

	CreateCheckoutCallCount int32
	CreateCheckoutErrors    []error // consumed in order, one per call

	// Confirmation is returned by ParseWebhook when Signature matches.
	Confirmation *service.PaymentConfirmation
	Signature    string
}

// NewMockProcessor creates a new mock processor.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{Signature: "valid"}
}

func (m *MockProcessor) CreateCheckout(ctx context.Context, req service.CheckoutRequest) (*service.Checkout, error) {
	n := atomic.AddInt32(&m.CreateCheckoutCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(n) <= len(m.CreateCheckoutErrors) && m.CreateCheckoutErrors[n-1] != nil {
		return nil, m.CreateCheckoutErrors[n-1]
	}
	return &service.Checkout{
		ID:          "cs_" + req.Reference,
		RedirectURL: "https://checkout.test/" + req.Reference,
	}, nil
}

func (m *MockProcessor) ParseWebhook(payload []byte, signature string) (*service.PaymentConfirmation, error) {
	if signature != m.Signature {
		return nil, service.ErrWebhookSignature
	}
	return m.Confirmation, nil
}

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHER
// ──────────────────────────────────────────────

// PublishedEvent is one call to MockPublisher.Publish.
type PublishedEvent struct {
	RoutingKey string
	Body       any
}

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{RoutingKey: routingKey, Body: body})
	return nil
}

func (m *MockPublisher) Close() {}

// Count returns how many events were published with routingKey.
func (m *MockPublisher) Count(routingKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.RoutingKey == routingKey {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK RESPONSE CACHE
// ──────────────────────────────────────────────

// MockResponseCache is an in-memory idempotency store.
type MockResponseCache struct {
	mu        sync.Mutex
	responses map[string]*redis.CachedResponse
	inFlight  map[string]bool
}

// NewMockResponseCache creates a new mock response cache.
func NewMockResponseCache() *MockResponseCache {
	return &MockResponseCache{
		responses: make(map[string]*redis.CachedResponse),
		inFlight:  make(map[string]bool),
	}
}

// MarkInFlight simulates a request with key still being processed.
func (m *MockResponseCache) MarkInFlight(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[key] = true
}

func (m *MockResponseCache) Get(ctx context.Context, key string) (*redis.CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.responses[key], nil
}

func (m *MockResponseCache) Set(ctx context.Context, key string, response *redis.CachedResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = response
	return nil
}

func (m *MockResponseCache) Begin(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[key] {
		return false, nil
	}
	m.inFlight[key] = true
	return true, nil
}

func (m *MockResponseCache) Finish(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, key)
	return nil
}

// Ensure mocks implement the interfaces they stand in for.
var (
	_ repository.DriverRepository            = (*MockDriverRepository)(nil)
	_ repository.RideRepository              = (*MockRideRepository)(nil)
	_ repository.WalletRepository            = (*MockWalletRepository)(nil)
	_ repository.ReconciliationRepository    = (*MockReconciliationRepository)(nil)
	_ repository.VerificationRepository      = (*MockVerificationRepository)(nil)
	_ repository.SettingsRepository          = (*MockSettingsRepository)(nil)
	_ repository.PaymentPreferenceRepository = (*MockPaymentPreferenceRepository)(nil)
	_ redis.LockStoreInterface               = (*MockLockStore)(nil)
	_ redis.ResponseCacheInterface           = (*MockResponseCache)(nil)
	_ service.Processor                      = (*MockProcessor)(nil)
	_ events.Publisher                       = (*MockPublisher)(nil)
)
