package middleware

import (
	"net/url"
	"strings"
)

// SensitiveFieldPatterns are substrings of parameter names whose values
// must never be logged.
var SensitiveFieldPatterns = []string{
	"key",
	"secret",
	"token",
	"password",
	"passwd",
	"credential",
	"signature",
}

const redacted = "[REDACTED]"

// RedactQuery encodes query with every sensitive value masked.
func RedactQuery(query url.Values) string {
	filtered := make(url.Values, len(query))
	for key, values := range query {
		if !isSensitiveField(key) {
			filtered[key] = values
			continue
		}
		masked := make([]string, len(values))
		for i := range masked {
			masked[i] = redacted
		}
		filtered[key] = masked
	}
	return filtered.Encode()
}

// isSensitiveField checks if a field name contains sensitive patterns
func isSensitiveField(fieldName string) bool {
	fieldLower := strings.ToLower(fieldName)
	for _, pattern := range SensitiveFieldPatterns {
		if strings.Contains(fieldLower, pattern) {
			return true
		}
	}
	return false
}
