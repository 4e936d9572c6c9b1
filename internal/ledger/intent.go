package ledger

import (
	"crypto/ed25519"
	"encoding/binary"

	"zkbadge/internal/auth/zklogin"
)

const registerIntentTag = "zkbadge/register_member/v1"

// SigningBytes is the canonical byte form of the intent covered by the
// member's ephemeral signature.
func (r RegisterMember) SigningBytes(registryRef string) []byte {
	var epoch [8]byte
	binary.BigEndian.PutUint64(epoch[:], r.MaxEpoch)

	parts := [][]byte{
		[]byte(registerIntentTag),
		[]byte(registryRef),
		[]byte(r.Sender),
		[]byte(r.EmailDomain),
		[]byte(r.Organization),
		r.PublicKey,
		epoch[:],
	}
	var out []byte
	for _, p := range parts {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		out = append(out, n[:]...)
		out = append(out, p...)
	}
	return out
}

// Sign fills in the public key and signature using key.
func (r *RegisterMember) Sign(registryRef string, key *zklogin.EphemeralKey) {
	r.PublicKey = key.PublicKey()
	r.Signature = key.Sign(r.SigningBytes(registryRef))
}

// VerifySignature checks the intent signature.
func (r RegisterMember) VerifySignature(registryRef string) bool {
	if len(r.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return zklogin.VerifySignature(r.PublicKey, r.SigningBytes(registryRef), r.Signature)
}
