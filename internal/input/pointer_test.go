package input

import (
	"math"
	"testing"
)

func TestPointDistance(t *testing.T) {
	a := Point{X: 0, Y: 0}
	b := Point{X: 3, Y: 4}
	if d := a.Distance(b); d != 5 {
		t.Errorf("Expected distance 5, got %v", d)
	}
	if d := b.Distance(b); d != 0 {
		t.Errorf("Expected distance 0, got %v", d)
	}
}

func TestPointLerp(t *testing.T) {
	a := Point{X: 10, Y: 20}
	b := Point{X: 30, Y: -20}

	tests := []struct {
		t    float64
		want Point
	}{
		{0, a},
		{0.5, Point{X: 20, Y: 0}},
		{1, b},
	}
	for _, tt := range tests {
		got := a.Lerp(b, tt.t)
		if math.Abs(got.X-tt.want.X) > 1e-9 || math.Abs(got.Y-tt.want.Y) > 1e-9 {
			t.Errorf("Lerp(%v) = %+v, want %+v", tt.t, got, tt.want)
		}
	}
}
