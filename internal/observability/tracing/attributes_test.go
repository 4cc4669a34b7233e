package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	got := SafeAttributes(
		attribute.String("affiliate.slug", "alice"),
		attribute.String("lead.email", "a@example.com"),
		attribute.String("client.ip", "10.0.0.1"),
		attribute.String("stripe_webhook_secret", "whsec"),
		attribute.String("api_key", "k"),
		attribute.Int("payout.count", 2),
	)

	keys := make([]string, 0, len(got))
	for _, attr := range got {
		keys = append(keys, string(attr.Key))
	}
	assert.ElementsMatch(t, []string{"affiliate.slug", "payout.count"}, keys)
}

func TestSafeErrorKeepsTypeOnly(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.Equal(t, "*errors.errorString", SafeError(assert.AnError).Error())
}
