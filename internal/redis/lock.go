package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock that expired or was taken over.
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireSettlementLock attempts to acquire the settlement lock of a ride.
// It returns the lock token, or "" if the lock is already held.
func (s *LockStore) AcquireSettlementLock(ctx context.Context, rideID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, settlementLockKey(rideID), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	return token, nil
}

// ReleaseSettlementLock releases the settlement lock if token still owns it.
func (s *LockStore) ReleaseSettlementLock(ctx context.Context, rideID, token string) error {
	n, err := releaseScript.Run(ctx, s.client, []string{settlementLockKey(rideID)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func settlementLockKey(rideID string) string {
	return fmt.Sprintf("lock:settlement:%s", rideID)
}
