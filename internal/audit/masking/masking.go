// Package masking redacts credential material before it reaches the audit
// trail. Audit rows are never deleted, so a leaked token in metadata would
// be permanent.
package masking

import "strings"

const maskToken = "****"

var sensitiveKeyParts = []string{"token", "secret", "password", "credential"}

// SensitiveKey reports whether a metadata key names credential material.
func SensitiveKey(key string) bool {
	lowered := strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lowered, part) {
			return true
		}
	}
	return false
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskMetadata returns a copy of metadata with string values under
// sensitive keys redacted. Nested maps are walked; nothing else carries
// secrets in this system's audit payloads.
func MaskMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}

	masked := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		switch cast := value.(type) {
		case string:
			if SensitiveKey(key) {
				masked[key] = MaskSecret(cast)
				continue
			}
			masked[key] = cast
		case map[string]any:
			masked[key] = MaskMetadata(cast)
		default:
			masked[key] = value
		}
	}
	return masked
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
