// Package strings holds small text helpers shared by the output formatters.
package strings

import (
	"strings"
)

// DefaultItemNameMaxLen is the width of item names in summary tables.
const DefaultItemNameMaxLen = 80

// MinTruncateLen is the smallest maxLen accepted by TruncateLine; shorter
// limits leave no room for content plus "...".
const MinTruncateLen = 4

// TruncateLine collapses all whitespace (including newlines) to single
// spaces and cuts the result to maxLen runes, ending in "..." when cut.
func TruncateLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
