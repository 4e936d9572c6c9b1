// Package contract holds a conformance suite every ledger.Client
// implementation must pass, so the in-memory fake and the relay client
// cannot drift apart.
package contract

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkbadge/internal/auth/zklogin"
	"zkbadge/internal/ledger"
	"zkbadge/pkg/domain"
)

// Harness is one fresh ledger under test.
type Harness struct {
	Client      ledger.Client
	RegistryRef string
	AdminCap    ledger.AdminCap
	// SeedDomain allows a domain out of band.
	SeedDomain func(pattern string)
}

// Suite runs the conformance checks against harnesses built by New.
type Suite struct {
	New func(t *testing.T) *Harness
}

func (s Suite) Run(t *testing.T) {
	t.Run("register member then verify badge", func(t *testing.T) {
		h := s.New(t)
		h.SeedDomain("@university.edu")
		addr, req := signedRegistration(t, h, "@university.edu")

		fx := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) { return h.Client.RegisterMember(ctx, req) })
		require.Equal(t, ledger.TxSuccess, fx.Status)
		require.NotEmpty(t, fx.BadgeID)

		ok, err := h.Client.VerifyBadge(context.Background(), fx.BadgeID, addr)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = h.Client.VerifyBadge(context.Background(), fx.BadgeID, testAddress("ff"))
		require.NoError(t, err)
		assert.False(t, ok)

		rec, err := h.Client.MemberRecord(context.Background(), addr)
		require.NoError(t, err)
		assert.Equal(t, fx.BadgeID, rec.BadgeID)
		assert.False(t, rec.Revoked)
	})

	t.Run("duplicate registration aborts", func(t *testing.T) {
		h := s.New(t)
		h.SeedDomain("@university.edu")
		_, req := signedRegistration(t, h, "@university.edu")

		first := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) { return h.Client.RegisterMember(ctx, req) })
		require.Equal(t, ledger.TxSuccess, first.Status)
		second := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) { return h.Client.RegisterMember(ctx, req) })
		assert.Equal(t, ledger.TxFailure, second.Status)
	})

	t.Run("unlisted domain aborts", func(t *testing.T) {
		h := s.New(t)
		_, req := signedRegistration(t, h, "@elsewhere.com")
		fx := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) { return h.Client.RegisterMember(ctx, req) })
		assert.Equal(t, ledger.TxFailure, fx.Status)
	})

	t.Run("tampered signature aborts", func(t *testing.T) {
		h := s.New(t)
		h.SeedDomain("@university.edu")
		_, req := signedRegistration(t, h, "@university.edu")
		req.Organization = "Other"
		fx := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) { return h.Client.RegisterMember(ctx, req) })
		assert.Equal(t, ledger.TxFailure, fx.Status)
	})

	t.Run("domain administration", func(t *testing.T) {
		h := s.New(t)
		ctx := context.Background()

		fx := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) {
			return h.Client.AddAllowedDomain(ctx, h.AdminCap, "@college.edu")
		})
		require.Equal(t, ledger.TxSuccess, fx.Status)

		allowed, err := h.Client.IsDomainAllowed(ctx, "@college.edu")
		require.NoError(t, err)
		assert.True(t, allowed)

		dup := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) {
			return h.Client.AddAllowedDomain(ctx, h.AdminCap, "@college.edu")
		})
		assert.Equal(t, ledger.TxFailure, dup.Status)

		removed := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) {
			return h.Client.RemoveAllowedDomain(ctx, h.AdminCap, "@college.edu")
		})
		require.Equal(t, ledger.TxSuccess, removed.Status)

		allowed, err = h.Client.IsDomainAllowed(ctx, "@college.edu")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("foreign admin capability is unauthorized", func(t *testing.T) {
		h := s.New(t)
		_, err := h.Client.AddAllowedDomain(context.Background(), ledger.AdminCap{ObjectID: "0xnot-ours"}, "@college.edu")
		require.Error(t, err)
		assert.Equal(t, ledger.CategoryUnauthorized, ledger.CategoryOf(err))
		assert.False(t, ledger.IsRetryable(err))
	})

	t.Run("revocation", func(t *testing.T) {
		h := s.New(t)
		h.SeedDomain("@university.edu")
		addr, req := signedRegistration(t, h, "@university.edu")
		reg := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) { return h.Client.RegisterMember(ctx, req) })
		require.Equal(t, ledger.TxSuccess, reg.Status)

		fx := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) {
			return h.Client.RevokeMembership(ctx, h.AdminCap, addr)
		})
		require.Equal(t, ledger.TxSuccess, fx.Status)

		ok, err := h.Client.VerifyBadge(context.Background(), reg.BadgeID, addr)
		require.NoError(t, err)
		assert.False(t, ok)

		rec, err := h.Client.MemberRecord(context.Background(), addr)
		require.NoError(t, err)
		assert.True(t, rec.Revoked)

		again := submit(t, h, func(ctx context.Context) (*ledger.Receipt, error) { return h.Client.RegisterMember(ctx, req) })
		assert.Equal(t, ledger.TxFailure, again.Status)
	})

	t.Run("unknown member and digest are not found", func(t *testing.T) {
		h := s.New(t)
		_, err := h.Client.MemberRecord(context.Background(), testAddress("01"))
		assert.Equal(t, ledger.CategoryNotFound, ledger.CategoryOf(err))
		_, err = h.Client.TransactionEffects(context.Background(), "0xmissing")
		assert.Equal(t, ledger.CategoryNotFound, ledger.CategoryOf(err))
	})
}

func testAddress(fill string) domain.Address {
	out := "0x"
	for len(out) < 66 {
		out += fill
	}
	return domain.Address(out[:66])
}

func signedRegistration(t *testing.T, h *Harness, emailDomain string) (domain.Address, ledger.RegisterMember) {
	t.Helper()
	key, err := zklogin.GenerateEphemeralKey(nil)
	require.NoError(t, err)
	addr, err := zklogin.DeriveAddress("https://accounts.example.com", hex.EncodeToString(key.PublicKey()), []byte("salt"))
	require.NoError(t, err)

	req := ledger.RegisterMember{
		Sender:       addr,
		EmailDomain:  emailDomain,
		Organization: "University",
		MaxEpoch:     uint64(time.Now().Add(time.Hour).Unix()),
	}
	req.Sign(h.RegistryRef, key)
	return addr, req
}

func submit(t *testing.T, h *Harness, fn func(context.Context) (*ledger.Receipt, error)) *ledger.Effects {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	receipt, err := fn(ctx)
	require.NoError(t, err)
	fx, err := ledger.AwaitEffects(ctx, h.Client, receipt.Digest, 10*time.Millisecond)
	require.NoError(t, err)
	return fx
}
