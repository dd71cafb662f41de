package calc

import (
	"fmt"

	"github.com/holiman/uint256"
)

// A fixed-point operand is a (coefficient, exponent) pair: value = coefficient * 10^exponent.
// Results are expressed as a coefficient for the target exponent.

func DecimalMul(c1 uint64, e1 int32, c2 uint64, e2 int32, target int32) (uint64, error) {
	return decimalMul(c1, e1, c2, e2, target, Floor)
}

func DecimalCeilMul(c1 uint64, e1 int32, c2 uint64, e2 int32, target int32) (uint64, error) {
	return decimalMul(c1, e1, c2, e2, target, Ceil)
}

func DecimalDiv(c1 uint64, e1 int32, c2 uint64, e2 int32, target int32) (uint64, error) {
	return decimalDiv(c1, e1, c2, e2, target, Floor)
}

func DecimalCeilDiv(c1 uint64, e1 int32, c2 uint64, e2 int32, target int32) (uint64, error) {
	return decimalDiv(c1, e1, c2, e2, target, Ceil)
}

func decimalMul(c1 uint64, e1 int32, c2 uint64, e2 int32, target int32, rounding Rounding) (uint64, error) {
	power := int64(e1) + int64(e2) - int64(target)
	product := new(uint256.Int).Mul(uint256.NewInt(c1), uint256.NewInt(c2))
	return scale(product, uint256.NewInt(1), power, rounding)
}

func decimalDiv(c1 uint64, e1 int32, c2 uint64, e2 int32, target int32, rounding Rounding) (uint64, error) {
	if c2 == 0 {
		return 0, ErrDivisionByZero
	}
	power := int64(e1) - int64(e2) - int64(target)
	return scale(uint256.NewInt(c1), uint256.NewInt(c2), power, rounding)
}

// scale computes num/den * 10^power, applying the power to whichever side keeps precision.
func scale(num, den *uint256.Int, power int64, rounding Rounding) (uint64, error) {
	if power > 77 || power < -77 {
		return 0, fmt.Errorf("%w: exponent %d out of range", ErrMathOverflow, power)
	}
	factor, err := Pow10(int(abs64(power)))
	if err != nil {
		return 0, err
	}
	if power >= 0 {
		scaled, overflow := new(uint256.Int).MulOverflow(num, factor)
		if overflow {
			return 0, fmt.Errorf("%w: %s * 10^%d", ErrMathOverflow, num.Dec(), power)
		}
		return divRound(scaled, den, rounding)
	}
	scaledDen, overflow := new(uint256.Int).MulOverflow(den, factor)
	if overflow {
		// the quotient is below one unit of the target exponent
		if rounding == Ceil && !num.IsZero() {
			return 1, nil
		}
		return 0, nil
	}
	return divRound(num, scaledDen, rounding)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// TokenMul multiplies two token amounts, returning the product at the larger precision.
func TokenMul(a uint64, decimalsA uint8, b uint64, decimalsB uint8) (uint64, uint8, error) {
	target := max(decimalsA, decimalsB)
	out, err := DecimalMul(a, -int32(decimalsA), b, -int32(decimalsB), -int32(target))
	if err != nil {
		return 0, 0, err
	}
	return out, target, nil
}

// TokenDiv divides two token amounts, returning the quotient at the larger precision.
func TokenDiv(a uint64, decimalsA uint8, b uint64, decimalsB uint8) (uint64, uint8, error) {
	target := max(decimalsA, decimalsB)
	out, err := DecimalDiv(a, -int32(decimalsA), b, -int32(decimalsB), -int32(target))
	if err != nil {
		return 0, 0, err
	}
	return out, target, nil
}

// Rescale converts an amount between precisions, e.g. an 18-decimal reward into a 6-decimal token.
func Rescale(amount uint64, from, to uint8, rounding Rounding) (uint64, error) {
	return decimalMul(amount, -int32(from), 1, 0, -int32(to), rounding)
}
