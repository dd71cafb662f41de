package calc

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ValidateAmount checks that a human amount is positive, representable in base
// units and carries no more fractional digits than the token supports.
func ValidateAmount(amount decimal.Decimal, decimals uint8, operation string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("invalid %s amount: must be positive", operation)
	}

	if -amount.Exponent() > int32(decimals) && !amount.Equal(amount.Truncate(int32(decimals))) {
		return fmt.Errorf("invalid %s amount: more than %d decimal places", operation, decimals)
	}

	maxAmount := ToUIAmount(math.MaxUint64, decimals)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("invalid %s amount: too large", operation)
	}

	return nil
}

// ValidateMinReceived checks if the output meets minimum requirements (slippage protection)
func ValidateMinReceived(actual, minReceived uint64, operation string) error {
	if actual < minReceived {
		return fmt.Errorf("%s output %d less than minimum required %d", operation, actual, minReceived)
	}
	return nil
}

// ValidateRange checks lo <= v <= hi.
func ValidateRange(v, lo, hi uint64, name string) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s %d outside [%d, %d]", name, v, lo, hi)
	}
	return nil
}
