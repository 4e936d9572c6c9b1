package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "zkbadge/pkg/domain-errors"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to Status
		code     dErrors.Code
	}{
		{StatusPending, StatusVerified, ""},
		{StatusPending, StatusRevoked, ""},
		{StatusVerified, StatusRevoked, ""},
		{StatusUnconfirmed, StatusVerified, ""},
		{StatusUnconfirmed, StatusRevoked, ""},
		{StatusRevoked, StatusVerified, dErrors.CodeCredentialFinal},
		{StatusRevoked, StatusPending, dErrors.CodeCredentialFinal},
		{StatusRevoked, StatusRevoked, dErrors.CodeCredentialFinal},
		{StatusVerified, StatusPending, dErrors.CodeInvariantViolation},
		{StatusVerified, StatusVerified, dErrors.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			c := &Credential{Status: tc.from}
			err := c.CanTransitionTo(tc.to)
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestRevokedIsAbsorbing(t *testing.T) {
	c := &Credential{Status: StatusRevoked}
	for _, next := range []Status{StatusPending, StatusVerified, StatusUnconfirmed, StatusRevoked} {
		require.Error(t, c.CanTransitionTo(next))
	}
}

func TestApplyLedgerConfirmation(t *testing.T) {
	now := time.Now()
	c := &Credential{Status: StatusUnconfirmed}
	c.ApplyLedgerConfirmation("0xbadge", "digest", now)
	assert.True(t, c.Confirmed)
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, "0xbadge", c.LedgerBadgeID)
	assert.Equal(t, "digest", c.TxDigest)
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	c := &Credential{Status: StatusPending, CreatedAt: now.Add(-time.Hour)}
	assert.True(t, c.IsStale(now, 30*time.Minute))
	assert.False(t, c.IsStale(now, 2*time.Hour))
	c.Confirmed = true
	assert.False(t, c.IsStale(now, 30*time.Minute))
}

func TestProfileValidate(t *testing.T) {
	valid := Profile{Name: " Alice ", Program: "CS", StudentNumber: "1", Email: "Alice@University.edu"}.Normalized()
	assert.NoError(t, valid.Validate())
	assert.Equal(t, "alice@university.edu", valid.Email)

	short := valid
	short.Name = "A"
	assert.True(t, dErrors.HasCode(short.Validate(), dErrors.CodeValidation))

	noProgram := valid
	noProgram.Program = "X"
	assert.True(t, dErrors.HasCode(noProgram.Validate(), dErrors.CodeValidation))

	noNumber := Profile{Name: "Alice", Program: "CS", StudentNumber: "   ", Email: "a@b.edu"}.Normalized()
	assert.True(t, dErrors.HasCode(noNumber.Validate(), dErrors.CodeValidation))
}

func TestNormalizePattern(t *testing.T) {
	got, err := NormalizePattern(" @University.EDU ")
	require.NoError(t, err)
	assert.Equal(t, "@university.edu", got)

	for _, bad := range []string{"invalid.com", "@localhost", "@university.", "@uni@versity.edu", ""} {
		_, err := NormalizePattern(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDomainFormat), bad)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("Verified")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, s)
	_, err = ParseStatus("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
