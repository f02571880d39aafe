package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRNG struct{ v int }

func (f fixedRNG) RangeMax(seedKey string, max int) int { return f.v }

func TestBuildQualifier_Shape(t *testing.T) {
	q := BuildQualifier(fixedRNG{v: 4242}, "VIN123", "SERIAL456")
	assert.Equal(t, "VIN123-delim-SERIAL456-delim-4242", q)
}

func TestSeededRNG_WithinBounds(t *testing.T) {
	r := NewSeededRNG()
	for i := 0; i < 50; i++ {
		v := r.Range("some-serial", 10, 20)
		assert.GreaterOrEqual(t, v, 10)
		assert.LessOrEqual(t, v, 20)
	}
}

func TestSeededRNG_RangeMaxWithinBounds(t *testing.T) {
	r := NewSeededRNG()
	for i := 0; i < 50; i++ {
		v := r.RangeMax("some-serial", 10000)
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 10000)
	}
}

func TestDeriveQualifierKey_Is32BytesAndDeterministic(t *testing.T) {
	k1 := DeriveQualifierKey("VIN123", "SERIAL456")
	k2 := DeriveQualifierKey("VIN123", "SERIAL456")
	k3 := DeriveQualifierKey("VIN999", "SERIAL456")

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestGCMRoundTrip(t *testing.T) {
	key := DeriveQualifierKey("VIN123", "SERIAL456")
	aad := []byte("SERIAL456")

	encoded, err := EncryptGCM(key, []byte("hello qualifier"), aad)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	plain, err := DecryptGCM(key, encoded, aad)
	require.NoError(t, err)
	assert.Equal(t, "hello qualifier", string(plain))
}

func TestGCMRoundTrip_WrongAADFails(t *testing.T) {
	key := DeriveQualifierKey("VIN123", "SERIAL456")
	encoded, err := EncryptGCM(key, []byte("hello qualifier"), []byte("SERIAL456"))
	require.NoError(t, err)

	_, err = DecryptGCM(key, encoded, []byte("WRONG"))
	assert.Error(t, err)
}

func TestCBCRoundTrip(t *testing.T) {
	key := DeriveQualifierKey("VIN123", "SERIAL456")

	encoded, err := EncryptCBC(key, []byte("hello qualifier, a bit longer than one block"))
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	plain, err := DecryptCBC(key, encoded)
	require.NoError(t, err)
	assert.Equal(t, "hello qualifier, a bit longer than one block", string(plain))
}

func TestEncryptQualifier_BothModesProduceNonEmptyBase64(t *testing.T) {
	rng := fixedRNG{v: 7}

	gcmOut, err := EncryptQualifier(rng, "VIN1", "SER1", ModeGCM)
	require.NoError(t, err)
	assert.NotEmpty(t, gcmOut)

	cbcOut, err := EncryptQualifier(rng, "VIN1", "SER1", ModeCBC)
	require.NoError(t, err)
	assert.NotEmpty(t, cbcOut)

	assert.NotEqual(t, gcmOut, cbcOut)
	assert.False(t, strings.ContainsAny(gcmOut, " \n"))
}
