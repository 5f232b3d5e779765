package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "MT_****7890", MaskSecret("MT_1234567890"))
	assert.Equal(t, "****mple", MaskSecret("ops@example"))
}

func TestMaskKeysLeavesOtherValues(t *testing.T) {
	masked := MaskKeys(map[string]any{
		"reference": "MT_1234567890",
		"status":    "pending",
		"provider": map[string]any{
			"Reference": "pay_ABCDEFGH",
			"kind":      "razorpay",
		},
		"": "dropped",
	}, "reference")

	assert.Equal(t, "MT_****7890", masked["reference"])
	assert.Equal(t, "pending", masked["status"])
	nested := masked["provider"].(map[string]any)
	assert.Equal(t, "pay_****EFGH", nested["Reference"])
	assert.Equal(t, "razorpay", nested["kind"])
	assert.NotContains(t, masked, "")
	assert.Nil(t, MaskKeys(nil, "reference"))
}
