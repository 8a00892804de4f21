package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBucket struct {
	keys  []string
	rate  float64
	burst int
}

func (b *recordingBucket) Allow(_ context.Context, key string, rate float64, burst int) (*Result, error) {
	b.keys = append(b.keys, key)
	b.rate = rate
	b.burst = burst
	return &Result{Allowed: true, Limit: burst, Remaining: burst - 1}, nil
}

func TestNewWriteLimiter_DisabledWithoutBucketOrRate(t *testing.T) {
	assert.Nil(t, NewWriteLimiter(nil, 1, 1))
	assert.Nil(t, NewWriteLimiter(&recordingBucket{}, 0, 1))
	assert.Nil(t, NewWriteLimiter(&recordingBucket{}, 1, 0))

	var l *WriteLimiter
	assert.False(t, l.Enabled())
}

func TestWriteLimiter_KeysBySubject(t *testing.T) {
	bucket := &recordingBucket{}
	l := NewWriteLimiter(bucket, 2.5, 10)
	require.True(t, l.Enabled())

	_, err := l.Allow(context.Background(), " user-7 ")
	require.NoError(t, err)
	_, err = l.Allow(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"bizledger:ratelimit:write:user-7", "bizledger:ratelimit:write:anonymous"}, bucket.keys)
	assert.Equal(t, 2.5, bucket.rate)
	assert.Equal(t, 10, bucket.burst)
}

func TestTokenBucket_RejectsBadArguments(t *testing.T) {
	var tb *TokenBucket
	_, err := tb.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.Nil(t, NewTokenBucket(nil))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 8*time.Second, bucketTTL(5, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}

func TestReplyConversions(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(42), toInt("42"))
	assert.InDelta(t, 0.75, toFloat("0.75"), 1e-9)
	assert.Equal(t, 3.0, toFloat(int64(3)))
	assert.Equal(t, 0.0, toFloat(nil))
}
