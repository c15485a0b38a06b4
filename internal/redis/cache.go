package redis

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes
const (
	idempotencyPrefix = "idempotency:"
	inFlightPrefix    = "idempotency:inflight:"
	inFlightMarkerTTL = 30 * time.Second
)

// CachedResponse is an HTTP response replayed for a repeated idempotency key.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// ResponseCache stores idempotent HTTP responses in Redis.
type ResponseCache struct {
	client *redis.Client
}

// NewResponseCache creates a new ResponseCache.
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// Get retrieves a cached response. Returns nil on a cache miss.
func (s *ResponseCache) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// Set stores a response for ttl.
func (s *ResponseCache) Set(ctx context.Context, key string, response *CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyPrefix+key, data, ttl).Err()
}

// Begin marks key as in flight. It returns false when another request with
// the same key is still being processed.
func (s *ResponseCache) Begin(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, inFlightPrefix+key, "1", inFlightMarkerTTL).Result()
}

// Finish clears the in-flight marker.
func (s *ResponseCache) Finish(ctx context.Context, key string) error {
	return s.client.Del(ctx, inFlightPrefix+key).Err()
}
