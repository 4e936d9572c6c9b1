package zklogin

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// EphemeralKey is the single-use Ed25519 keypair generated per login attempt.
// It signs ledger intents for the lifetime of the session it was issued to.
type EphemeralKey struct {
	priv ed25519.PrivateKey
}

// GenerateEphemeralKey creates a fresh keypair. A nil reader uses crypto/rand.
func GenerateEphemeralKey(r io.Reader) (*EphemeralKey, error) {
	if r == nil {
		r = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("zklogin: generate ephemeral key: %w", err)
	}
	return &EphemeralKey{priv: priv}, nil
}

// EphemeralKeyFromSeed rebuilds a key from the seed kept with pending
// handshake material.
func EphemeralKeyFromSeed(seed []byte) (*EphemeralKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("zklogin: invalid ephemeral seed")
	}
	return &EphemeralKey{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *EphemeralKey) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Seed returns a copy of the private seed.
func (k *EphemeralKey) Seed() []byte {
	return append([]byte(nil), k.priv.Seed()...)
}

func (k *EphemeralKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Destroy zeroes the private key. The key is unusable afterwards.
func (k *EphemeralKey) Destroy() {
	if k == nil {
		return
	}
	for i := range k.priv {
		k.priv[i] = 0
	}
	k.priv = nil
}

func (k *EphemeralKey) Destroyed() bool {
	return k == nil || len(k.priv) == 0
}

// VerifySignature checks sig over msg against an ephemeral public key.
func VerifySignature(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
