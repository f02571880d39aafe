package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// EncryptGCM encrypts plaintext under key using AES-256-GCM, optionally
// binding aad as additional authenticated data (the activation request
// sets AAD to the serial number), and returns the nonce-prepended
// ciphertext base64-encoded.
func EncryptGCM(key, plaintext, aad []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes-gcm: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("aes-gcm: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("aes-gcm: nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, aad)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptGCM reverses EncryptGCM.
func DecryptGCM(key []byte, encoded string, aad []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm: decode: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm: new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("aes-gcm: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, aad)
}

// EncryptCBC encrypts plaintext under key using AES-CBC with PKCS#7
// padding, returning the IV-prepended ciphertext base64-encoded — the
// fallback mode when useGCMEncryptForActivation is false. CBC carries no
// AAD; the activation payload's serial binding in that mode comes from
// the qualifier string itself, not the cipher.
func EncryptCBC(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes-cbc: new cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())

	iv := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("aes-cbc: iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := append(iv, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptCBC reverses EncryptCBC.
func DecryptCBC(key []byte, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("aes-cbc: decode: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes-cbc: new cipher: %w", err)
	}
	bs := block.BlockSize()
	if len(raw) < bs || (len(raw)-bs)%bs != 0 {
		return nil, fmt.Errorf("aes-cbc: invalid ciphertext length")
	}
	iv, ciphertext := raw[:bs], raw[bs:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("aes-cbc: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("aes-cbc: invalid padding")
	}
	return data[:len(data)-padLen], nil
}

// Mode selects between the two qualifier encryption schemes, matching
// HCPAuth.useGCMEncryptForActivation.
type Mode int

const (
	ModeGCM Mode = iota
	ModeCBC
)

// EncryptQualifier builds and encrypts the activation qualifier string for
// (vin, serial) under mode, returning the base64 ciphertext the
// activation payload carries as "qualifier".
func EncryptQualifier(rng interface {
	RangeMax(seedKey string, max int) int
}, vin, serial string, mode Mode) (string, error) {
	qualifier := BuildQualifier(rng, vin, serial)
	key := DeriveQualifierKey(vin, serial)

	switch mode {
	case ModeGCM:
		return EncryptGCM(key, []byte(qualifier), []byte(serial))
	default:
		return EncryptCBC(key, []byte(qualifier))
	}
}
