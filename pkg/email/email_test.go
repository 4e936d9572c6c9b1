package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	assert.Equal(t, "@university.edu", Domain("alice@University.EDU"))
	assert.Equal(t, "@cs.university.edu", Domain(" bob@cs.university.edu "))
	assert.Equal(t, "", Domain("no-at-sign"))
	assert.Equal(t, "", Domain("@university.edu"))
	assert.Equal(t, "", Domain("trailing@"))
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"alice.johnson@university.edu": "Alice Johnson",
		"bob@university.edu":           "Bob",
		"mary_ann-lee+cs@x.edu":        "Mary Ann Lee Cs",
		"@university.edu":              "Member",
		"":                             "Member",
		"no-domain":                    "No Domain",
	}
	for address, want := range tests {
		assert.Equal(t, want, DisplayName(address), address)
	}
}
