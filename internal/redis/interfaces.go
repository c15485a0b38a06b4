package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireSettlementLock(ctx context.Context, rideID string, ttl time.Duration) (string, error)
	ReleaseSettlementLock(ctx context.Context, rideID, token string) error
}

// ResponseCacheInterface defines the interface for idempotent response storage.
type ResponseCacheInterface interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, response *CachedResponse, ttl time.Duration) error
	Begin(ctx context.Context, key string) (bool, error)
	Finish(ctx context.Context, key string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface     = (*LockStore)(nil)
	_ ResponseCacheInterface = (*ResponseCache)(nil)
)
