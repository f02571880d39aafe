package httpclient

import (
	"testing"

	"github.com/cuemby/igniteclient/pkg/ierr"
	"github.com/stretchr/testify/assert"
)

type zeroRNG struct{}

func (zeroRNG) Range(seedKey string, min, max int) int { return min }

func TestExponentialBackoff_SuccessResets(t *testing.T) {
	b := NewExponentialBackoff(1000, 2000, 60000, zeroRNG{}, "serial")

	b.NextRetryTime(ierr.Server)
	b.NextRetryTime(ierr.Server)
	assert.Equal(t, 2, b.RetryCount())

	got := b.NextRetryTime(ierr.Ok)
	assert.Equal(t, int64(1000), got)
	assert.Equal(t, 0, b.RetryCount())
}

func TestExponentialBackoff_ZeroRNGYieldsZeroDelayAndCountsRetries(t *testing.T) {
	b := NewExponentialBackoff(1000, 1000, 3000, zeroRNG{}, "serial")

	// zeroRNG always returns min (0), so NextRetryTime's randomized
	// output is 0 whatever the doubled, capped value is, since
	// Range(seed, 0, value) = 0; only the retry counter moves.
	got1 := b.NextRetryTime(ierr.Server)
	got2 := b.NextRetryTime(ierr.Server)
	got3 := b.NextRetryTime(ierr.Server)

	assert.Equal(t, int64(0), got1)
	assert.Equal(t, int64(0), got2)
	assert.Equal(t, int64(0), got3)
	assert.Equal(t, 3, b.RetryCount())
}

func TestExponentialBackoff_UnhandledCodeDoesNotGrowCounter(t *testing.T) {
	b := NewExponentialBackoff(1000, 2000, 60000, zeroRNG{}, "serial")

	// Only Server and Timeout double; everything else — including
	// Network, which the activation ladder also refuses to count — gets
	// the flat failure time back.
	for _, code := range []ierr.Code{ierr.InvalidInput, ierr.Network, ierr.Other, ierr.Unknown} {
		got := b.NextRetryTime(code)
		assert.Equal(t, int64(2000), got, "code %s", code)
	}
	assert.Equal(t, 0, b.RetryCount())
}

// maxRNG always returns max, letting us observe the actual doubling
// formula pre-randomization.
type maxRNG struct{}

func (maxRNG) Range(seedKey string, min, max int) int { return max }

func TestExponentialBackoff_DoublingFormula(t *testing.T) {
	b := NewExponentialBackoff(1000, 1000, 60000, maxRNG{}, "serial")

	assert.Equal(t, int64(1000), b.NextRetryTime(ierr.Server))  // 1000*2^0
	assert.Equal(t, int64(2000), b.NextRetryTime(ierr.Server))  // 1000*2^1
	assert.Equal(t, int64(4000), b.NextRetryTime(ierr.Server))  // 1000*2^2
}

func TestExponentialBackoff_CapsAtMaxRetryTime(t *testing.T) {
	b := NewExponentialBackoff(1000, 1000, 3000, maxRNG{}, "serial")

	b.NextRetryTime(ierr.Server) // 1000
	b.NextRetryTime(ierr.Server) // 2000
	got := b.NextRetryTime(ierr.Server) // would be 4000, capped to 3000
	assert.Equal(t, int64(3000), got)
}
