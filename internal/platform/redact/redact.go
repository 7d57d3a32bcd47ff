// Package redact strips sensitive values out of strings, errors and maps
// before they reach a log sink.
package redact

import (
	"regexp"
	"strings"
)

type pattern struct {
	name string
	re   *regexp.Regexp
	mask string
}

var (
	patterns = []pattern{
		{
			name: "JWT",
			re:   regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
			mask: "[REDACTED_JWT]",
		},
		{
			name: "Bearer token",
			re:   regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.]{20,}`),
			mask: "Bearer [REDACTED_TOKEN]",
		},
		{
			name: "password field",
			re:   regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*['"]?([^'"\s]{6,})['"]?`),
			mask: "$1=[REDACTED_PASSWORD]",
		},
		{
			name: "secret field",
			re:   regexp.MustCompile(`(?i)(secret|client_secret)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,})['"]?`),
			mask: "$1=[REDACTED_SECRET]",
		},
		{
			name: "authorization header",
			re:   regexp.MustCompile(`(?i)authorization\s*:\s*['"]?([^'"\n]{20,})['"]?`),
			mask: "Authorization: [REDACTED_AUTH]",
		},
		{
			name: "PAN",
			re:   regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
			mask: "[REDACTED_PAN]",
		},
		{
			name: "IBAN",
			re:   regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`),
			mask: "[REDACTED_IBAN]",
		},
		{
			name: "email (partial)",
			re:   regexp.MustCompile(`\b([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`),
			mask: "$1@[REDACTED_DOMAIN]",
		},
	}

	sensitiveHeaders = []string{
		"authorization", "x-api-key", "cookie", "set-cookie", "proxy-authorization",
	}

	sensitiveKeywords = []string{
		"password", "passwd", "pwd", "secret", "token", "key", "auth",
		"authorization", "credential", "private", "iban", "passport",
		"booking_reference", "access_token", "refresh_token",
	}
)

// String masks every known sensitive pattern found in input.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, p := range patterns {
		result = p.re.ReplaceAllString(result, p.mask)
	}
	return result
}

// Err sanitizes an error's message, returning "" for a nil error.
func Err(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Map sanitizes a map of loggable fields, fully redacting values whose key
// looks sensitive and pattern-scrubbing the rest.
func Map(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if IsSensitiveKey(key) {
			out[key] = "[REDACTED]"
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = String(s)
		} else {
			out[key] = value
		}
	}
	return out
}

// Headers sanitizes HTTP headers for logging.
func Headers(headers map[string][]string) map[string][]string {
	if headers == nil {
		return nil
	}
	out := make(map[string][]string, len(headers))
	for key, values := range headers {
		lower := strings.ToLower(key)
		sensitive := false
		for _, h := range sensitiveHeaders {
			if lower == h || strings.Contains(lower, h) {
				sensitive = true
				break
			}
		}
		if sensitive {
			out[key] = []string{"[REDACTED]"}
			continue
		}
		scrubbed := make([]string, len(values))
		for i, v := range values {
			scrubbed[i] = String(v)
		}
		out[key] = scrubbed
	}
	return out
}

// IsSensitiveKey reports whether a field name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
