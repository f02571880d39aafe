// Package cryptoutil implements the activation qualifier string, the
// per-serial seeded PRNG the backoff and retry packages draw their jitter
// from, and the AES-GCM/AES-CBC qualifier encryption modes selected by
// configuration.
package cryptoutil

import (
	"math/rand"
	"time"
)

// SeededRNG draws from a per-call seed built by XORing the seed key's
// bytes (rotated a byte at a time) with the current time, so two devices
// sharing the same seed key still diverge, and the same device diverges
// call to call. It satisfies pkg/backoff.RNG and
// pkg/httpclient.ExponentialBackoff's jitter dependency.
type SeededRNG struct{}

// NewSeededRNG builds a SeededRNG. It holds no state — Range/RangeMax are
// plain functions of their arguments and the wall clock.
func NewSeededRNG() SeededRNG { return SeededRNG{} }

// Range returns a pseudo-random int in [min, max], inclusive both ends.
func (SeededRNG) Range(seedKey string, min, max int) int {
	return rangeFrom(seed(seedKey), min, max)
}

// RangeMax returns a pseudo-random int in [0, max].
func (SeededRNG) RangeMax(seedKey string, max int) int {
	return rangeFrom(seed(seedKey), 0, max)
}

func rangeFrom(s int64, min, max int) int {
	if max <= min {
		return min
	}
	r := rand.New(rand.NewSource(s))
	return min + r.Intn(max-min+1)
}

// seed XORs the seed key's bytes, rotated through the 8 byte-lanes of a
// 64-bit seed, against the current time.
func seed(seedKey string) int64 {
	s := time.Now().UnixNano()
	shift := 0
	for i := 0; i < len(seedKey); i++ {
		s ^= int64(seedKey[i]) << (uint(shift) * 8)
		shift++
		if shift >= 8 {
			shift = 0
		}
	}
	return s
}
