package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnvestedAmount(t *testing.T) {
	const window = 8 * 60 * 60

	tests := []struct {
		name     string
		vesting  uint64
		elapsed  uint64
		expected uint64
	}{
		{name: "just distributed", vesting: 100, elapsed: 0, expected: 100},
		{name: "half way", vesting: 100, elapsed: window / 2, expected: 50},
		{name: "floor rounding", vesting: 100, elapsed: 1, expected: 99},
		{name: "window end", vesting: 100, elapsed: window, expected: 0},
		{name: "after window", vesting: 100, elapsed: window * 3, expected: 0},
		{name: "nothing vesting", vesting: 0, elapsed: 10, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := UnvestedAmount(tt.vesting, tt.elapsed, window)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestConvertToShares(t *testing.T) {
	tests := []struct {
		name        string
		assets      uint64
		totalShares uint64
		totalAssets uint64
		rounding    Rounding
		expected    uint64
	}{
		{name: "empty vault", assets: 1000, totalShares: 0, totalAssets: 0, rounding: Floor, expected: 1000},
		{name: "par", assets: 500, totalShares: 1000, totalAssets: 1000, rounding: Floor, expected: 500},
		// 100 * 1001 / 1101 = 90.91
		{name: "appreciated floor", assets: 100, totalShares: 1000, totalAssets: 1100, rounding: Floor, expected: 90},
		{name: "appreciated ceil", assets: 100, totalShares: 1000, totalAssets: 1100, rounding: Ceil, expected: 91},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ConvertToShares(tt.assets, tt.totalShares, tt.totalAssets, tt.rounding)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestConvertToAssets(t *testing.T) {
	tests := []struct {
		name        string
		shares      uint64
		totalShares uint64
		totalAssets uint64
		rounding    Rounding
		expected    uint64
	}{
		{name: "par", shares: 500, totalShares: 1000, totalAssets: 1000, rounding: Floor, expected: 500},
		// 100 * 1101 / 1001 = 109.99
		{name: "appreciated floor", shares: 100, totalShares: 1000, totalAssets: 1100, rounding: Floor, expected: 109},
		{name: "appreciated ceil", shares: 100, totalShares: 1000, totalAssets: 1100, rounding: Ceil, expected: 110},
		{name: "no shares outstanding", shares: 0, totalShares: 0, totalAssets: 0, rounding: Floor, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ConvertToAssets(tt.shares, tt.totalShares, tt.totalAssets, tt.rounding)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRoundTripNeverFavoursDepositor(t *testing.T) {
	pools := []struct{ shares, assets uint64 }{
		{1000, 1000},
		{1_000_000, 1_250_000},
		{3_333_333, 1_000_001},
		{10, 7},
	}
	deposits := []uint64{1, 7, 999, 123_456, 10_000_000}

	for _, p := range pools {
		for _, a := range deposits {
			minted, err := ConvertToShares(a, p.shares, p.assets, Floor)
			require.NoError(t, err)
			back, err := ConvertToAssets(minted, p.shares+minted, p.assets+a, Floor)
			require.NoError(t, err)
			assert.LessOrEqual(t, back, a, "pool %+v deposit %d", p, a)
		}
	}
}
