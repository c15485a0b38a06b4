package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridecore/internal/config"
	"ridecore/internal/metrics"
)

// NewRedisClient connects to the Redis instance holding settlement locks and
// idempotent responses. Commands are traced when nrApp is set.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	client.AddHook(&commandHook{nrApp: nrApp})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// commandHook counts failed commands per key family and, with New Relic
// enabled, reports each command as a datastore segment.
type commandHook struct {
	nrApp *newrelic.Application
}

func (h *commandHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *commandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		family := keyFamily(cmd)
		defer h.segment(ctx, cmd.Name(), family).End()

		err := next(ctx, cmd)
		h.observe(family, err)
		return err
	}
}

func (h *commandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		family := "pipeline"
		if len(cmds) > 0 {
			family = keyFamily(cmds[0])
		}
		defer h.segment(ctx, "pipeline", family).End()

		err := next(ctx, cmds)
		h.observe(family, err)
		return err
	}
}

func (h *commandHook) observe(family string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.RedisCommandErrors.WithLabelValues(family).Inc()
	}
}

// segment starts a datastore segment, or returns a nil segment whose End is a
// no-op when tracing is off or ctx carries no transaction.
func (h *commandHook) segment(ctx context.Context, op, family string) *newrelic.DatastoreSegment {
	if h.nrApp == nil {
		return nil
	}
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}
	return &newrelic.DatastoreSegment{
		StartTime:  txn.StartSegmentNow(),
		Product:    newrelic.DatastoreRedis,
		Operation:  op,
		Collection: family,
	}
}

// keyFamily returns at most the first two colon-separated segments of the
// key, e.g. "lock:settlement" for "lock:settlement:<ride>". Keys carrying no
// prefix fall under "redis".
func keyFamily(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return "redis"
	}
	key, ok := args[1].(string)
	if !ok {
		return "redis"
	}
	parts := strings.SplitN(key, ":", 3)
	switch len(parts) {
	case 3:
		return parts[0] + ":" + parts[1]
	case 2:
		return parts[0]
	default:
		return "redis"
	}
}
