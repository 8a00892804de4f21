// Package masking redacts sensitive values before they are written to the
// audit trail.
package masking

import (
	"strings"
)

const maskToken = "****"

// sensitiveKeys are metadata keys whose string values are masked.
var sensitiveKeys = map[string]struct{}{
	"reference":      {},
	"account_number": {},
	"card_number":    {},
	"iban":           {},
}

// MaskReference hides all but the last four characters of a payment reference.
func MaskReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// Redact copies metadata, masking sensitive keys at any depth. It always
// returns a non-nil map.
func Redact(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = redactValue(key, value)
	}
	return out
}

func redactValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			return MaskReference(cast)
		}
		return cast
	case map[string]any:
		return Redact(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, redactValue(key, item))
		}
		return out
	default:
		return value
	}
}
