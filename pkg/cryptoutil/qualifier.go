package cryptoutil

import "fmt"

// BuildQualifier constructs the activation qualifier string:
// "<vin>-delim-<serial>-delim-<rand>", where rand is a seeded value in
// [0, 10000] drawn from the serial number.
func BuildQualifier(rng interface {
	RangeMax(seedKey string, max int) int
}, vin, serial string) string {
	rand := rng.RangeMax(serial, 10000)
	return fmt.Sprintf("%s-delim-%s-delim-%d", vin, serial, rand)
}
