package queue

import (
	"math"
	"math/rand"
	"time"
)

// wakeupKey is the redis list workers block on between poll passes
const wakeupKey = "queue:loyalty:wakeup"

// EnqueueOptions represents options for enqueueing a job
type EnqueueOptions struct {
	delay    time.Duration
	maxRetry int
}

// EnqueueOption is a function that modifies EnqueueOptions
type EnqueueOption func(*EnqueueOptions)

// WithDelay schedules the job to run no earlier than now+delay
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.delay = delay
	}
}

// WithMaxRetry sets the maximum number of retries for a job
func WithMaxRetry(maxRetry int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.maxRetry = maxRetry
	}
}

// calculateBackoff returns the exponential backoff with jitter for a retry.
// Base 30s, doubling per attempt, capped at 1 hour.
func calculateBackoff(retry int) time.Duration {
	backoff := 30 * time.Second * time.Duration(math.Pow(2, float64(retry-1)))
	if backoff > time.Hour {
		backoff = time.Hour
	}
	jitter := time.Duration(rand.Int63n(int64(backoff) / 4))
	return backoff + jitter
}
