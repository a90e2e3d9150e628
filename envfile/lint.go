package envfile

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-envparse"
)

// Lint reports problems in raw environment file content without rejecting it.
// Besides duplicate keys and malformed lines it flags values that dotenv style
// readers would decode differently from the verbatim value this store keeps.
func Lint(raw string) []string {
	warnings := make([]string, 0)
	entries := ParseString(raw)

	seen := make(map[string]int)
	for i, l := range entries {
		trimmed := strings.TrimSpace(l.Raw)
		switch {
		case l.IsPair():
			if first, ok := seen[l.Key]; ok {
				warnings = append(warnings, fmt.Sprintf("line %d: %s already set on line %d, the last value wins", i+1, l.Key, first))
			} else {
				seen[l.Key] = i + 1
			}
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		default:
			warnings = append(warnings, fmt.Sprintf("line %d: not KEY=VALUE, kept verbatim", i+1))
		}
	}

	decoded, err := envparse.Parse(strings.NewReader(raw))
	if err != nil {
		return append(warnings, fmt.Sprintf("dotenv readers reject this file: %v", err))
	}
	for _, key := range entries.Keys() {
		verbatim := entries.Value(key)
		if v, ok := decoded[key]; ok && v != verbatim {
			warnings = append(warnings, fmt.Sprintf("%s: dotenv readers decode the value as %q", key, v))
		}
	}
	return warnings
}
