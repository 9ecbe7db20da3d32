package format

import (
	"math"
	"testing"
)

func TestMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{2.5, "R$ 2.50"},
		{12, "R$ 12.00"},
		{0.005, "R$ 0.01"},
		{1234.567, "R$ 1234.57"},
		{math.Copysign(0, -1), "R$ 0.00"},
		{math.NaN(), "R$ 0.00"},
	}
	for _, tt := range tests {
		if got := Money(tt.in); got != tt.want {
			t.Errorf("Money(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuantity(t *testing.T) {
	t.Parallel()

	if got := Quantity(50); got != "50" {
		t.Errorf("Quantity(50) = %q", got)
	}
	if got := Quantity(2.5); got != "2.50" {
		t.Errorf("Quantity(2.5) = %q", got)
	}
}
