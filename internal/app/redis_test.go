package app

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestKeyFamily(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		cmd  redis.Cmder
		want string
	}{
		{redis.NewStringCmd(ctx, "get", "lock:settlement:ride-1"), "lock:settlement"},
		{redis.NewStringCmd(ctx, "get", "idempotency:POST:/v1/rides:k1"), "idempotency:POST"},
		{redis.NewStringCmd(ctx, "get", "idempotency:inflight:POST:/v1/rides:k1"), "idempotency:inflight"},
		{redis.NewStringCmd(ctx, "get", "wallet:u1"), "wallet"},
		{redis.NewStringCmd(ctx, "get", "plain"), "redis"},
		{redis.NewStatusCmd(ctx, "ping"), "redis"},
	}

	for _, tc := range testCases {
		if got := keyFamily(tc.cmd); got != tc.want {
			t.Errorf("keyFamily(%v) = %q, want %q", tc.cmd.Args(), got, tc.want)
		}
	}
}
