// Package format renders the numbers shown to users. Every currency value in
// projected documents and synthesized answers goes through Money so the
// two-decimal contract holds everywhere.
package format

import (
	"math"
	"strconv"
)

// Money renders v as Brazilian reais with exactly two decimals and a dot
// separator, e.g. "R$ 2.50".
func Money(v float64) string {
	return "R$ " + Decimal(v)
}

// Decimal renders v with exactly two decimals. Negative zero is printed as
// "0.00" and non-finite values as "0.00".
func Decimal(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}

// Quantity renders a stock or sale quantity. Whole numbers print without
// decimals; fractional quantities (kg) print with two.
func Quantity(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return Decimal(v)
}
