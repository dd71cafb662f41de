package calc

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	ErrMathOverflow   = errors.New("math overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Rounding selects how a quotient with a non-zero remainder is resolved.
type Rounding int

const (
	Floor Rounding = iota
	Ceil
)

func (r Rounding) String() string {
	switch r {
	case Floor:
		return "floor"
	case Ceil:
		return "ceil"
	default:
		return fmt.Sprintf("rounding(%d)", int(r))
	}
}

func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrMathOverflow, a, b)
	}
	return sum, nil
}

func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrMathOverflow, a, b)
	}
	return diff, nil
}

func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrMathOverflow, a, b)
	}
	return lo, nil
}

func CheckedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrDivisionByZero, a)
	}
	return a / b, nil
}

// CheckedCeilDiv divides rounding any remainder up.
func CheckedCeilDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: %d / 0", ErrDivisionByZero, a)
	}
	if a == 0 {
		return 0, nil
	}
	return (a-1)/b + 1, nil
}

func CheckedPow(base uint64, exp uint) (uint64, error) {
	result := uint64(1)
	for i := uint(0); i < exp; i++ {
		next, err := CheckedMul(result, base)
		if err != nil {
			return 0, fmt.Errorf("%w: %d ^ %d", ErrMathOverflow, base, exp)
		}
		result = next
	}
	return result, nil
}

// Pow10 returns 10^exp as a 256-bit integer. 10^77 is the largest power that fits.
func Pow10(exp int) (*uint256.Int, error) {
	if exp < 0 || exp > 77 {
		return nil, fmt.Errorf("%w: 10 ^ %d", ErrMathOverflow, exp)
	}
	ten := uint256.NewInt(10)
	result := uint256.NewInt(1)
	for i := 0; i < exp; i++ {
		result.Mul(result, ten)
	}
	return result, nil
}

// MulDiv computes a*b/c with a 256-bit intermediate and the requested rounding.
func MulDiv(a, b, c uint64, rounding Rounding) (uint64, error) {
	return mulDivWide(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(c), rounding)
}

func mulDivWide(a, b, c *uint256.Int, rounding Rounding) (uint64, error) {
	if c.IsZero() {
		return 0, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return 0, fmt.Errorf("%w: %s * %s", ErrMathOverflow, a.Dec(), b.Dec())
	}
	return divRound(product, c, rounding)
}

func divRound(num, den *uint256.Int, rounding Rounding) (uint64, error) {
	if den.IsZero() {
		return 0, ErrDivisionByZero
	}
	quotient, remainder := new(uint256.Int), new(uint256.Int)
	quotient.DivMod(num, den, remainder)
	if rounding == Ceil && !remainder.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return ToUint64(quotient)
}

// ToUint64 narrows x, failing when it does not fit in 64 bits.
func ToUint64(x *uint256.Int) (uint64, error) {
	if !x.IsUint64() {
		return 0, fmt.Errorf("%w: %s as u64", ErrMathOverflow, x.Dec())
	}
	return x.Uint64(), nil
}
