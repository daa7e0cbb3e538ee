package config

import (
	"strings"

	"rpmirror/internal/backend"
)

// ParseAttributes parses the "key:value;tag" attribute convention. Entries
// are separated by ';'. An entry without ':' is a tag (no key). Only the
// first ':' separates key and value; empty entries and empty values are
// dropped.
func ParseAttributes(s string) []backend.Attribute {
	var attrs []backend.Attribute
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, found := strings.Cut(entry, ":")
		if !found {
			attrs = append(attrs, backend.Attribute{Value: entry})
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if value == "" {
			continue
		}
		attrs = append(attrs, backend.Attribute{Key: key, Value: value})
	}
	return attrs
}
