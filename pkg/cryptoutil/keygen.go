package cryptoutil

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyDerivationIterations = 10000
	keyLength               = 32 // AES-256
)

// DeriveQualifierKey derives the 32-byte key the qualifier ciphers use:
// PBKDF2-HMAC-SHA256 over "vin:serial", salted by the serial number. The
// vin/serial pair is attacker-observable elsewhere in the activation
// payload, so the stretch matters more than it would for a true secret.
func DeriveQualifierKey(vin, serial string) []byte {
	passphrase := vin + ":" + serial
	return pbkdf2.Key([]byte(passphrase), []byte(serial), keyDerivationIterations, keyLength, sha256.New)
}
