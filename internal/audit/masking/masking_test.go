package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "ht_live_abc_****beef", MaskSecret("ht_live_abc_deadbeef"))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****7890", MaskSecret("1234567890"))
}

func TestMaskSensitiveOnlyTouchesSensitiveKeys(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"account": "payouts@example.com",
		"kind":    "paypal",
		"nested": map[string]any{
			"token": "tok_123456789",
			"count": 3,
		},
		" ": "dropped",
	})

	assert.Equal(t, "****.com", out["account"])
	assert.Equal(t, "paypal", out["kind"])
	assert.Equal(t, map[string]any{"token": "tok_****6789", "count": 3}, out["nested"])
	assert.NotContains(t, out, " ")
	assert.Nil(t, MaskSensitive(nil))
}

func TestMaskJSONMasksEveryString(t *testing.T) {
	out := MaskJSON(map[string]any{"a": "secret_value", "b": []any{"x_12345", 7}})
	assert.Equal(t, "secret_****alue", out["a"])
	assert.Equal(t, []any{"x_****2345", 7}, out["b"])
}
