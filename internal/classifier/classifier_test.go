package classifier

import (
	"testing"
)

func TestInterpretLabelThreshold(t *testing.T) {
	cases := []struct {
		p     float64
		label string
	}{
		{0, LabelReal},
		{0.1, LabelReal},
		{0.4999, LabelReal},
		{0.5, LabelDeepfake},
		{0.9, LabelDeepfake},
		{1, LabelDeepfake},
	}
	for _, tc := range cases {
		if got := Interpret(tc.p).Label; got != tc.label {
			t.Errorf("Interpret(%v).Label = %q, want %q", tc.p, got, tc.label)
		}
	}
}

func TestInterpretConfidence(t *testing.T) {
	cases := []struct {
		p          float64
		confidence float64
	}{
		{0.5, 100},
		{0, 0},
		{1, 0},
		{0.1, 20},
		{0.9, 20},
		{0.75, 50},
		{0.123456, 24.69},
	}
	for _, tc := range cases {
		if got := Interpret(tc.p).Confidence; got != tc.confidence {
			t.Errorf("Interpret(%v).Confidence = %v, want %v", tc.p, got, tc.confidence)
		}
	}
}

func TestInterpretFloat32Probability(t *testing.T) {
	// Backends produce float32; widening must not leak past two decimals.
	v := Interpret(float64(float32(0.1)))
	if v.Label != LabelReal || v.Confidence != 20 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}
