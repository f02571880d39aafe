// Package httpclient implements the bounded, reusable TLS session pool and
// request/response helpers that every outbound cloud call goes through, and
// the exponential-backoff retry-time computation shared by HTTP executors.
package httpclient

import (
	"math"

	"github.com/cuemby/igniteclient/pkg/ierr"
)

// RNG produces a seeded random value, satisfied by pkg/cryptoutil.SeededRNG.
type RNG interface {
	Range(seedKey string, min, max int) int
}

// ExponentialBackoff is a stateless-per-request retry-time helper: on
// success it resets; on a retryable server/timeout
// failure it doubles (capped), then randomizes in [0, value] with a
// per-device seed so concurrent callers don't retry in lockstep.
type ExponentialBackoff struct {
	successTimeMs int64
	failureTimeMs int64
	maxRetryMs    int64
	retryCount    int

	rng      RNG
	seedKey  string
}

// NewExponentialBackoff builds a backoff helper. successTimeMs is the
// retry time returned immediately after a success; failureTimeMs is the
// base used in the doubling formula; maxRetryMs caps it.
func NewExponentialBackoff(successTimeMs, failureTimeMs, maxRetryMs int64, rng RNG, seedKey string) *ExponentialBackoff {
	return &ExponentialBackoff{
		successTimeMs: successTimeMs,
		failureTimeMs: failureTimeMs,
		maxRetryMs:    maxRetryMs,
		rng:           rng,
		seedKey:       seedKey,
	}
}

// NextRetryTime computes the next retry delay in milliseconds for the
// given outcome code. ierr.Ok resets the counter and returns
// successTimeMs. Only ierr.Server and ierr.Timeout grow the delay; every
// other code returns the flat failureTimeMs without touching the counter.
func (b *ExponentialBackoff) NextRetryTime(code ierr.Code) int64 {
	switch code {
	case ierr.Ok:
		b.retryCount = 0
		return b.successTimeMs

	case ierr.Server, ierr.Timeout:
		value := float64(b.failureTimeMs) * math.Pow(2, float64(b.retryCount))
		if value > float64(b.maxRetryMs) {
			value = float64(b.maxRetryMs)
		}
		b.retryCount++
		if b.rng == nil || value <= 0 {
			return int64(value)
		}
		return int64(b.rng.Range(b.seedKey, 0, int(value)))

	default:
		return b.failureTimeMs
	}
}

// RetryCount reports how many consecutive retryable failures have been
// recorded since the last success or reset.
func (b *ExponentialBackoff) RetryCount() int { return b.retryCount }
