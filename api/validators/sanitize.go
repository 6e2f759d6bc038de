package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input and caps it at maxLen bytes without splitting a
// multi-byte character.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return strings.TrimSpace(trimmed[:cut])
}

// OptionalString returns nil for absent or blank input.
func OptionalString(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	if value := SanitizeString(*input, maxLen); value != "" {
		return &value
	}
	return nil
}
