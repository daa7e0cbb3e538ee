package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short", input: "TestLogin", maxLen: 20, expected: "TestLogin"},
		{name: "exact", input: "hello", maxLen: 5, expected: "hello"},
		{name: "cut", input: "TestCheckout/with_a_really_long_subtest_name", maxLen: 15, expected: "TestCheckout..."},
		{name: "newlines collapsed", input: "table\n  driven\ttest", maxLen: 40, expected: "table driven test"},
		{name: "runes", input: "größenänderung", maxLen: 8, expected: "größe..."},
		{name: "limit clamped", input: "abcdefgh", maxLen: 1, expected: "a..."},
		{name: "empty", input: "", maxLen: 10, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncateLine(tt.input, tt.maxLen))
		})
	}
}
