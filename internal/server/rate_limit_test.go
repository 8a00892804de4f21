package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizledger/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBucket allows the first n takes per key.
type countingBucket struct {
	n     int
	taken map[string]int
	err   error
}

func (b *countingBucket) Allow(_ context.Context, key string, _ float64, burst int) (*ratelimit.Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.taken[key]++
	remaining := b.n - b.taken[key]
	if remaining < 0 {
		return &ratelimit.Result{Allowed: false, Limit: burst, RetryAfter: 1500 * time.Millisecond}, nil
	}
	return &ratelimit.Result{Allowed: true, Limit: burst, Remaining: remaining}, nil
}

func TestWriteRateLimit(t *testing.T) {
	s := newTestServer(t)
	bucket := &countingBucket{n: 1, taken: map[string]int{}}
	s.writeLimiter = ratelimit.NewWriteLimiter(bucket, 1, 1)

	customer := gin.H{"name": "Initech", "email": "ap@initech.test", "currency": "USD"}

	rec := do(t, s, http.MethodPost, "/api/customers", customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do(t, s, http.MethodPost, "/api/customers", customer)
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)

	// Reads pass through.
	rec = do(t, s, http.MethodGet, "/api/customers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"bizledger:ratelimit:write:user-7": 2}, bucket.taken)
}

func TestWriteRateLimit_FailsOpen(t *testing.T) {
	s := newTestServer(t)
	s.writeLimiter = ratelimit.NewWriteLimiter(&countingBucket{err: errors.New("redis down")}, 1, 1)

	rec := do(t, s, http.MethodPost, "/api/customers", gin.H{"name": "Initech", "email": "ap@initech.test", "currency": "USD"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
