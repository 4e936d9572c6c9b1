package zklogin

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSalt = []byte("deployment-salt-0001")

func TestDeriveAddress(t *testing.T) {
	t.Run("is deterministic for the same subject", func(t *testing.T) {
		a1, err := DeriveAddress("https://accounts.google.com", "1234567890", testSalt)
		require.NoError(t, err)
		a2, err := DeriveAddress("https://accounts.google.com", "1234567890", testSalt)
		require.NoError(t, err)
		assert.Equal(t, a1, a2)
	})

	t.Run("produces a lower-case 32 byte hex address", func(t *testing.T) {
		addr, err := DeriveAddress("https://accounts.google.com", "subject", testSalt)
		require.NoError(t, err)
		s := addr.String()
		assert.True(t, strings.HasPrefix(s, "0x"))
		assert.Len(t, s, 66)
		assert.Equal(t, strings.ToLower(s), s)
	})

	t.Run("distinct subjects map to distinct addresses", func(t *testing.T) {
		seen := map[string]string{}
		for _, sub := range []string{"a", "b", "ab", "a\x00b", "1", "10", "100"} {
			addr, err := DeriveAddress("iss", sub, testSalt)
			require.NoError(t, err)
			prev, dup := seen[addr.String()]
			assert.False(t, dup, "subjects %q and %q collided", prev, sub)
			seen[addr.String()] = sub
		}
	})

	t.Run("salt and issuer change the address", func(t *testing.T) {
		base, _ := DeriveAddress("iss", "sub", testSalt)
		otherSalt, _ := DeriveAddress("iss", "sub", []byte("another-salt"))
		otherIss, _ := DeriveAddress("iss2", "sub", testSalt)
		assert.NotEqual(t, base, otherSalt)
		assert.NotEqual(t, base, otherIss)
	})

	t.Run("issuer and subject boundaries are unambiguous", func(t *testing.T) {
		pairs := [][2]string{
			{"ab", "c"},
			{"a", "bc"},
			{"a\x00b", "c"},
			{"a", "b\x00c"},
			{"", "a\x00b"},
			{"a\x00", "b"},
		}
		seen := map[string][2]string{}
		for _, p := range pairs {
			addr, err := DeriveAddress(p[0], p[1], testSalt)
			require.NoError(t, err)
			prev, dup := seen[addr.String()]
			assert.False(t, dup, "(%q, %q) collided with (%q, %q)", p[0], p[1], prev[0], prev[1])
			seen[addr.String()] = p
		}
	})

	t.Run("rejects empty inputs", func(t *testing.T) {
		_, err := DeriveAddress("iss", "", testSalt)
		assert.ErrorIs(t, err, ErrEmptySubject)
		_, err = DeriveAddress("iss", "sub", nil)
		assert.ErrorIs(t, err, ErrEmptySalt)
	})
}

func TestEphemeralKey(t *testing.T) {
	key, err := GenerateEphemeralKey(nil)
	require.NoError(t, err)

	msg := []byte("register_member")
	sig := key.Sign(msg)
	assert.True(t, VerifySignature(key.PublicKey(), msg, sig))
	assert.False(t, VerifySignature(key.PublicKey(), []byte("tampered"), sig))

	restored, err := EphemeralKeyFromSeed(key.Seed())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), restored.PublicKey())

	key.Destroy()
	assert.True(t, key.Destroyed())

	_, err = EphemeralKeyFromSeed([]byte("short"))
	assert.Error(t, err)
}

func TestComputeNonce(t *testing.T) {
	key, err := GenerateEphemeralKey(bytes.NewReader(bytes.Repeat([]byte{7}, 64)))
	require.NoError(t, err)
	randomness := bytes.Repeat([]byte{1}, RandomnessSize)

	n1 := ComputeNonce(key.PublicKey(), 10, randomness)
	n2 := ComputeNonce(key.PublicKey(), 10, randomness)
	assert.Equal(t, n1, n2)
	assert.Len(t, n1, 43)

	assert.NotEqual(t, n1, ComputeNonce(key.PublicKey(), 11, randomness))
	assert.NotEqual(t, n1, ComputeNonce(key.PublicKey(), 10, bytes.Repeat([]byte{2}, RandomnessSize)))

	assert.True(t, NonceEqual(n1, n2))
	assert.False(t, NonceEqual(n1, "other"))
}

func TestNewRandomness(t *testing.T) {
	a, err := NewRandomness(nil)
	require.NoError(t, err)
	b, err := NewRandomness(nil)
	require.NoError(t, err)
	assert.Len(t, a, RandomnessSize)
	assert.NotEqual(t, a, b)

	_, err = NewRandomness(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}
