// Package zklogin holds the pure cryptographic pieces of the login handshake:
// ephemeral keys, nonce construction and address derivation. Nothing here
// performs I/O or keeps state.
package zklogin

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"

	"golang.org/x/crypto/blake2b"

	"zkbadge/pkg/domain"
)

// DerivationVersion identifies the address scheme. Changing the scheme changes
// every member's address, so a new scheme must get a new version and a
// migration, never an in-place edit.
const DerivationVersion = 1

const (
	addressDomainTag = "zkbadge/address/v1"
	// zkLogin signature scheme flag, prefixed before hashing into an address.
	zkLoginSchemeFlag byte = 0x05
)

var (
	ErrEmptySubject = errors.New("zklogin: subject is required")
	ErrEmptySalt    = errors.New("zklogin: salt is required")
)

// DeriveAddress maps (issuer, subject, salt) to a ledger address.
//
//	seed    = blake2b-256(key = blake2b-256(salt), lp(tag) || lp(issuer) || lp(subject))
//	address = "0x" || hex(blake2b-256(0x05 || seed))
//
// lp(x) is the big-endian uint32 length of x followed by x, so no choice of
// issuer and subject bytes can frame the same preimage as another pair. The
// issuer is bound in so equal subject IDs from different providers never
// share an address.
func DeriveAddress(issuer, subject string, salt []byte) (domain.Address, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if len(salt) == 0 {
		return "", ErrEmptySalt
	}

	key := blake2b.Sum256(salt)
	h, err := blake2b.New256(key[:])
	if err != nil {
		return "", err
	}
	for _, field := range []string{addressDomainTag, issuer, subject} {
		writeField(h, field)
	}
	seed := h.Sum(nil)

	digest := blake2b.Sum256(append([]byte{zkLoginSchemeFlag}, seed...))
	return domain.Address("0x" + hex.EncodeToString(digest[:])), nil
}

func writeField(h hash.Hash, field string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(field)))
	h.Write(n[:])
	h.Write([]byte(field))
}
