// Package redact scrubs credentials from provider payloads and error text
// before they reach logs, status reports or the audit trail.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"access_token":  true,
	"secret":        true,
	"client_secret": true,
	"api_key":       true,
	"key":           true,
	"code":          true,
	"session_token": true,
	"authorization": true,
}

var textPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)((?:api_)?key=)[^&\s"]+`), "${1}" + Placeholder},
	{regexp.MustCompile(`(?i)((?:access_)?token=)[^&\s"]+`), "${1}" + Placeholder},
	{regexp.MustCompile(`(?i)(bearer)\s+[^\s"]+`), "${1} " + Placeholder},
}

// String removes key/token query values and bearer tokens from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, p := range textPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

// IsSensitiveKey reports whether values under key are always redacted.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// Map returns a deep copy of m with sensitive keys replaced and every string
// value passed through String. m is not modified.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = value(v)
	}
	return out
}

func value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Map(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = value(item)
		}
		return out
	case string:
		return String(t)
	default:
		return v
	}
}
