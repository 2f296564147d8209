package arb

import (
	"math"
	"testing"
)

func TestAmericanToDecimal(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  float64
	}{
		{"positive +150", 150, 2.5},
		{"positive +120", 120, 2.2},
		{"positive +100", 100, 2.0},
		{"negative -200", -200, 1.5},
		{"negative -110", -110, 1.909090909},
		{"zero boundary", 0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmericanToDecimal(tt.price)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("AmericanToDecimal(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestImpliedProbability(t *testing.T) {
	if got := ImpliedProbability(2.5); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("ImpliedProbability(2.5) = %v, want 0.4", got)
	}
}
