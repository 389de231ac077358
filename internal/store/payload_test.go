package store

import "testing"

func TestValidatePayloadRejectsForbiddenKey(t *testing.T) {
	payload := map[string]interface{}{"__proto__": map[string]interface{}{"x": 1}}
	if err := ValidatePayload([]byte(`{}`), payload); err == nil {
		t.Error("expected forbidden key to be rejected")
	}
}

func TestValidatePayloadRejectsNonFiniteFloat(t *testing.T) {
	payload := map[string]interface{}{"score": mustNaN()}
	if err := ValidatePayload([]byte(`{}`), payload); err == nil {
		t.Error("expected non-finite float to be rejected")
	}
}

func TestValidatePayloadRejectsExcessiveDepth(t *testing.T) {
	var nested interface{} = map[string]interface{}{"leaf": true}
	for i := 0; i < maxPayloadDepth+5; i++ {
		nested = map[string]interface{}{"child": nested}
	}
	if err := ValidatePayload([]byte(`{}`), nested); err == nil {
		t.Error("expected excessive nesting to be rejected")
	}
}

func TestValidatePayloadAcceptsOrdinaryData(t *testing.T) {
	payload := map[string]interface{}{
		"symbol":     "foo.Bar",
		"line":       42.0,
		"confidence": 0.87,
		"tags":       []interface{}{"a", "b"},
	}
	if err := ValidatePayload([]byte(`{}`), payload); err != nil {
		t.Errorf("expected ordinary payload to pass, got %v", err)
	}
}

func mustNaN() float64 {
	var zero float64
	return zero / zero
}
