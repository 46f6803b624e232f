// Package safemath provides checked 64-bit integer arithmetic for share and
// reward computations. All conversions between deposited value, shares and
// reward units route through these helpers so that overflow and division by
// zero surface as typed errors instead of wrapping or trapping.
package safemath

import (
	"math"
	"math/bits"

	"github.com/codebymuri/DeFiYield/internal/domain"
)

// MulDiv computes a*b/denom with a full 128-bit intermediate product.
// All inputs must be non-negative. Returns domain.ErrDivisionByZero when
// denom == 0 and domain.ErrOverflow when the quotient does not fit in int64.
func MulDiv(a, b, denom int64) (int64, error) {
	if denom == 0 {
		return 0, domain.ErrDivisionByZero
	}
	if a < 0 || b < 0 || denom < 0 {
		return 0, domain.ErrOverflow
	}

	hi, lo := bits.Mul64(uint64(a), uint64(b))
	// bits.Div64 panics unless hi < denom; that condition is exactly the
	// quotient fitting in 64 bits.
	if hi >= uint64(denom) {
		return 0, domain.ErrOverflow
	}
	quo, _ := bits.Div64(hi, lo, uint64(denom))
	if quo > math.MaxInt64 {
		return 0, domain.ErrOverflow
	}
	return int64(quo), nil
}

// Mul computes a*b, failing with domain.ErrOverflow when the product does not
// fit in int64. Inputs must be non-negative.
func Mul(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, domain.ErrOverflow
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, domain.ErrOverflow
	}
	return int64(lo), nil
}

// Add computes a+b, failing with domain.ErrOverflow when the sum does not fit
// in int64. Inputs must be non-negative.
func Add(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, domain.ErrOverflow
	}
	sum := a + b
	if sum < a {
		return 0, domain.ErrOverflow
	}
	return sum, nil
}

// Sub computes a-b, failing with domain.ErrOverflow when the result would be
// negative. Balances and share counts never go negative, so a negative result
// always indicates a caller bug or corrupted state.
func Sub(a, b int64) (int64, error) {
	if b > a || b < 0 {
		return 0, domain.ErrOverflow
	}
	return a - b, nil
}
