package ratelimit

import (
	"context"
	"strings"
)

const writeKeyPrefix = "bizledger:ratelimit:write:"

// Bucket is the subset of TokenBucket the write limiter needs.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*Result, error)
}

// WriteLimiter throttles mutating API calls per subject (actor or client IP).
type WriteLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

func NewWriteLimiter(bucket Bucket, rate float64, burst int) *WriteLimiter {
	if bucket == nil || rate <= 0 || burst <= 0 {
		return nil
	}
	return &WriteLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WriteLimiter) Allow(ctx context.Context, subject string) (*Result, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.bucket.Allow(ctx, writeKeyPrefix+subject, l.rate, l.burst)
}
