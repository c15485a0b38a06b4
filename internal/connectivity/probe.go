package connectivity

import (
	"context"
	"database/sql"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
)

// StoreProber round-trips Postgres and Redis.
type StoreProber struct {
	db    *sql.DB
	redis *redis.Client
}

// NewStoreProber creates a new StoreProber. Either store may be nil.
func NewStoreProber(db *sql.DB, redisClient *redis.Client) *StoreProber {
	return &StoreProber{db: db, redis: redisClient}
}

// Probe returns the first failure.
func (p *StoreProber) Probe(ctx context.Context) error {
	if p.db != nil {
		var one int
		if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("postgres probe: %w", err)
		}
	}
	if p.redis != nil {
		if err := p.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// InterfaceReachability reports the host reachable while any non-loopback
// interface is up.
type InterfaceReachability struct{}

// Reachable implements ReachabilitySource.
func (InterfaceReachability) Reachable() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
