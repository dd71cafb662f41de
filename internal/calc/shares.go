package calc

import (
	"fmt"

	"github.com/holiman/uint256"
)

// UnvestedAmount returns the part of a reward that has not vested after elapsed
// seconds of a linear vesting window: vesting * (window - elapsed) / window.
func UnvestedAmount(vesting, elapsed, window uint64) (uint64, error) {
	if window == 0 || elapsed >= window {
		return 0, nil
	}
	return MulDiv(vesting, window-elapsed, window, Floor)
}

// ConvertToShares prices assets in shares with a virtual share and a virtual
// asset added to the pool: assets * (totalShares + 1) / (totalAssets + 1).
func ConvertToShares(assets, totalShares, totalAssets uint64, rounding Rounding) (uint64, error) {
	out, err := mulDivWide(
		uint256.NewInt(assets),
		plusOne(totalShares),
		plusOne(totalAssets),
		rounding,
	)
	if err != nil {
		return 0, fmt.Errorf("convert %d assets to shares: %w", assets, err)
	}
	return out, nil
}

// ConvertToAssets is the inverse of ConvertToShares:
// shares * (totalAssets + 1) / (totalShares + 1).
func ConvertToAssets(shares, totalShares, totalAssets uint64, rounding Rounding) (uint64, error) {
	out, err := mulDivWide(
		uint256.NewInt(shares),
		plusOne(totalAssets),
		plusOne(totalShares),
		rounding,
	)
	if err != nil {
		return 0, fmt.Errorf("convert %d shares to assets: %w", shares, err)
	}
	return out, nil
}

func plusOne(v uint64) *uint256.Int {
	return new(uint256.Int).AddUint64(uint256.NewInt(v), 1)
}
