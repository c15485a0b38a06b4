package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ridecore/internal/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key on mutating requests. A duplicate that arrives while the
// first request is still running gets 409. Cache failures never block the
// request.
func IdempotencyMiddleware(cache redis.ResponseCacheInterface, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache == nil || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		cached, err := cache.Get(ctx, cacheKey)
		if err != nil {
			log.WithError(err).Warn("idempotency lookup failed")
			c.Next()
			return
		}
		if cached != nil {
			for k, v := range cached.Headers {
				for _, val := range v {
					c.Header(k, val)
				}
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(cached.StatusCode, "application/json", cached.Body)
			c.Abort()
			return
		}

		started, err := cache.Begin(ctx, cacheKey)
		if err != nil {
			log.WithError(err).Warn("idempotency marker failed")
			c.Next()
			return
		}
		if !started {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is already in progress"})
			return
		}
		// Bookkeeping outlives a client that hangs up mid-request.
		storeCtx := context.WithoutCancel(ctx)
		defer func() {
			if err := cache.Finish(storeCtx, cacheKey); err != nil {
				log.WithError(err).Warn("idempotency marker release failed")
			}
		}()

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if cacheable(status) {
			response := redis.CachedResponse{
				StatusCode: status,
				Body:       w.body.Bytes(),
				Headers:    extractResponseHeaders(c),
			}
			if err := cache.Set(storeCtx, cacheKey, &response, idempotencyTTL); err != nil {
				log.WithError(err).Warn("idempotency store failed")
			}
		}
	}
}

// cacheable reports whether a response is final for its key. 5xx and the
// retryable 4xx statuses (a settlement still in progress, a stale write, rate
// limiting) are left uncached so a retry with the same key runs again.
func cacheable(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return false
	}
	return status >= 200 && status < 500
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
