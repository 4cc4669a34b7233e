package tracing

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var sensitiveAttributeKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"email",
	"ip",
}

// SafeAttributes drops attributes that may carry credentials or visitor PII.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError keeps only the error type.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%T", err)
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, part := range strings.FieldsFunc(key, func(r rune) bool { return r == '.' || r == '_' }) {
		for _, needle := range sensitiveAttributeKeys {
			if part == needle {
				return true
			}
		}
	}
	for _, needle := range sensitiveAttributeKeys {
		if strings.Contains(needle, "_") && strings.Contains(key, needle) {
			return true
		}
	}
	return false
}
