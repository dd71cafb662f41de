package calc

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("amount must not be negative")

// ToUIAmount renders base units as a human amount, 1_500_000 at 6 decimals is 1.5.
func ToUIAmount(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// ToTokenAmount converts a human amount into base units, truncating digits
// beyond the token precision.
func ToTokenAmount(ui decimal.Decimal, decimals uint8) (uint64, error) {
	if ui.IsNegative() {
		return 0, ErrNegativeAmount
	}
	units := ui.Shift(int32(decimals)).Floor().BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("%w: %s at %d decimals", ErrMathOverflow, ui.String(), decimals)
	}
	return units.Uint64(), nil
}

// ParseTokenAmount parses a decimal string such as "12.5" into base units.
func ParseTokenAmount(s string, decimals uint8) (uint64, error) {
	ui, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if err := ValidateAmount(ui, decimals, "token"); err != nil {
		return 0, err
	}
	return ToTokenAmount(ui, decimals)
}
