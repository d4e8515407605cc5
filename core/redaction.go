package core

import "strings"

const RedactedValue = "[REDACTED]"

// credentialMarkers match anywhere in a lower-cased key.
var credentialMarkers = []string{
	"token", "secret", "password", "authorization", "bearer",
	"verifier", "api_key", "apikey", "refresh", "credential",
}

// OAuth redirect parameters that are sensitive on their own.
var redirectParams = map[string]bool{"code": true, "state": true}

// Identifier keys stay visible so logs and audit rows can be correlated.
// token_type names a scheme, not a secret.
var identifierKeys = map[string]bool{
	"provider_id": true, "user_id": true, "integration_id": true,
	"attempt_id": true, "automation_id": true, "execution_id": true,
	"request_id": true, "trigger_type": true, "token_type": true,
	"trace_id": true,
}

// RedactSensitiveMap returns a copy of fields with credential values
// replaced by RedactedValue. Nested maps and slices are walked; the input is
// never modified.
func RedactSensitiveMap(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if IsSensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

// IsSensitiveKey reports whether values under key must not be logged or
// returned to clients.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	switch {
	case key == "", identifierKeys[key]:
		return false
	case redirectParams[key]:
		return true
	}
	for _, marker := range credentialMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(v)
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = item
		}
		return RedactSensitiveMap(out)
	case []map[string]any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			items = append(items, RedactSensitiveMap(item))
		}
		return items
	case []any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			items = append(items, redactValue(item))
		}
		return items
	default:
		return value
	}
}
