package template

import "strings"

// RedactionMarker replaces secret values wherever a result is persisted.
const RedactionMarker = "*****"

// MaskSecrets deep-copies value, replacing every occurrence of a secret
// value inside string leaves with the redaction marker. Masking happens at
// the persistence boundary, independent of template resolution.
func MaskSecrets(value any, secrets map[string]string) any {
	if len(secrets) == 0 {
		return value
	}

	switch v := value.(type) {
	case string:
		return maskString(v, secrets)
	case map[string]any:
		masked := make(map[string]any, len(v))
		for key, item := range v {
			masked[key] = MaskSecrets(item, secrets)
		}

		return masked
	case []any:
		masked := make([]any, len(v))
		for i, item := range v {
			masked[i] = MaskSecrets(item, secrets)
		}

		return masked
	default:
		return value
	}
}

func maskString(s string, secrets map[string]string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}

		s = strings.ReplaceAll(s, secret, RedactionMarker)
	}

	return s
}
