package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseBadgeID checks parsing never panics and valid IDs round-trip.
func FuzzParseBadgeID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("badge-001")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseBadgeID(input)
		if err == nil {
			roundTrip, err2 := ParseBadgeID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAddress checks accepted addresses are already normalised.
func FuzzParseAddress(f *testing.F) {
	f.Add("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef")
	f.Add("0x")
	f.Add("not-an-address")

	f.Fuzz(func(t *testing.T, input string) {
		addr, err := ParseAddress(input)
		if err != nil {
			return
		}
		again, err := ParseAddress(addr.String())
		if err != nil || again != addr {
			t.Errorf("normalised address did not round-trip: %q", addr)
		}
	})
}
