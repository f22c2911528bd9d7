package reminder

import (
	"strconv"
	"time"
)

const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 5 * time.Minute
)

// RetryPolicy bounds redelivery: at most MaxRetries extra attempts, each
// Delay after the previous failure.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	return p
}

// DefaultRetryPolicy is two retries five minutes apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// DeriveRetryJobID names the job of retry n. The same inputs always give the
// same id, so scheduling a retry twice replaces rather than stacks.
func DeriveRetryJobID(originalID string, n int) string {
	if n <= 0 {
		return originalID
	}
	return originalID + "_retry_" + strconv.Itoa(n)
}

// retryDecision is what to do after a failed attempt.
type retryDecision struct {
	retry      bool
	retryCount int
	jobID      string
	fireAt     time.Time
}

// decide is the pure part of the retry state machine: given a reminder whose
// current attempt just failed, either plan the next attempt or give up.
func (p RetryPolicy) decide(r Reminder, now time.Time) retryDecision {
	if r.RetryCount >= p.MaxRetries {
		return retryDecision{retryCount: r.RetryCount}
	}
	n := r.RetryCount + 1
	return retryDecision{
		retry:      true,
		retryCount: n,
		jobID:      DeriveRetryJobID(r.ID, n),
		fireAt:     now.Add(p.Delay),
	}
}
