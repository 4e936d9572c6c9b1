package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		lower    bool
		expected []string
	}{
		{
			name:     "empty input",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "single element",
			input:    "admin@university.edu",
			expected: []string{"admin@university.edu"},
		},
		{
			name:     "trims and drops empties",
			input:    " a@x.edu, ,b@x.edu,, ",
			expected: []string{"a@x.edu", "b@x.edu"},
		},
		{
			name:     "dedupes preserving order",
			input:    "b,a,b,c,a",
			expected: []string{"b", "a", "c"},
		},
		{
			name:     "case-insensitive when lowering",
			input:    "Admin@X.edu,admin@x.edu",
			lower:    true,
			expected: []string{"admin@x.edu"},
		},
		{
			name:     "case preserved otherwise",
			input:    "Admin@X.edu,admin@x.edu",
			expected: []string{"Admin@X.edu", "admin@x.edu"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input, tt.lower))
		})
	}
}
