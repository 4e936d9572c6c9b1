package zklogin

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// RandomnessSize is the number of random bytes mixed into every nonce.
const RandomnessSize = 16

// NewRandomness draws fresh nonce randomness. A nil reader uses crypto/rand.
func NewRandomness(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, RandomnessSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("zklogin: read randomness: %w", err)
	}
	return buf, nil
}

// ComputeNonce binds the ephemeral public key, the key's validity bound and
// fresh randomness into the value sent as the OAuth nonce parameter:
//
//	base64url(blake2b-256(pub || be64(maxEpoch) || randomness))
func ComputeNonce(pub ed25519.PublicKey, maxEpoch uint64, randomness []byte) string {
	var epoch [8]byte
	binary.BigEndian.PutUint64(epoch[:], maxEpoch)

	buf := make([]byte, 0, len(pub)+len(epoch)+len(randomness))
	buf = append(buf, pub...)
	buf = append(buf, epoch[:]...)
	buf = append(buf, randomness...)
	sum := blake2b.Sum256(buf)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NonceEqual compares nonces in constant time.
func NonceEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
