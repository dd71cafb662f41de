package calc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalMul(t *testing.T) {
	tests := []struct {
		name     string
		c1       uint64
		e1       int32
		c2       uint64
		e2       int32
		target   int32
		ceil     bool
		expected uint64
		err      error
	}{
		// 1.5 * 2.0 = 3.0 at 6 decimals
		{name: "same precision", c1: 1_500_000, e1: -6, c2: 2_000_000, e2: -6, target: -6, expected: 3_000_000},
		// 1.5 (6 dec) * 2 (0 dec) at 9 decimals
		{name: "scale up", c1: 1_500_000, e1: -6, c2: 2, e2: 0, target: -9, expected: 3_000_000_000},
		// 0.000001 * 0.5 at 6 decimals = 0.0000005 -> floor 0, ceil 1
		{name: "floor below unit", c1: 1, e1: -6, c2: 5, e2: -1, target: -6, expected: 0},
		{name: "ceil below unit", c1: 1, e1: -6, c2: 5, e2: -1, target: -6, ceil: true, expected: 1},
		{name: "positive exponent", c1: 3, e1: 2, c2: 4, e2: 0, target: 0, expected: 1200},
		{name: "overflow", c1: math.MaxUint64, e1: 0, c2: 10, e2: 0, target: 0, err: ErrMathOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := DecimalMul
			if tt.ceil {
				op = DecimalCeilMul
			}
			result, err := op(tt.c1, tt.e1, tt.c2, tt.e2, tt.target)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDecimalDiv(t *testing.T) {
	tests := []struct {
		name     string
		c1       uint64
		e1       int32
		c2       uint64
		e2       int32
		target   int32
		ceil     bool
		expected uint64
		err      error
	}{
		// 3.0 / 2.0 = 1.5 at 6 decimals
		{name: "same precision", c1: 3_000_000, e1: -6, c2: 2_000_000, e2: -6, target: -6, expected: 1_500_000},
		// 1 / 3 at 6 decimals
		{name: "floor repeating", c1: 1, e1: 0, c2: 3, e2: 0, target: -6, expected: 333_333},
		{name: "ceil repeating", c1: 1, e1: 0, c2: 3, e2: 0, target: -6, ceil: true, expected: 333_334},
		// 1.0 (9 dec) / 4.0 (6 dec) at 9 decimals
		{name: "mixed precision", c1: 1_000_000_000, e1: -9, c2: 4_000_000, e2: -6, target: -9, expected: 250_000_000},
		{name: "division by zero", c1: 1, e1: 0, c2: 0, e2: 0, target: 0, err: ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := DecimalDiv
			if tt.ceil {
				op = DecimalCeilDiv
			}
			result, err := op(tt.c1, tt.e1, tt.c2, tt.e2, tt.target)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTokenMulDiv(t *testing.T) {
	out, decimals, err := TokenMul(2_000_000, 6, 1_500_000_000, 9)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), decimals)
	assert.Equal(t, uint64(3_000_000_000), out)

	out, decimals, err = TokenDiv(3_000_000, 6, 2_000_000, 6)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)
	assert.Equal(t, uint64(1_500_000), out)
}

func TestRescale(t *testing.T) {
	tests := []struct {
		name     string
		amount   uint64
		from, to uint8
		rounding Rounding
		expected uint64
	}{
		{name: "18 to 6 exact", amount: 1_000_000_000_000_000_000, from: 18, to: 6, rounding: Floor, expected: 1_000_000},
		{name: "18 to 6 floor", amount: 1_000_000_000_000_000_001, from: 18, to: 6, rounding: Floor, expected: 1_000_000},
		{name: "18 to 6 ceil", amount: 1_000_000_000_000_000_001, from: 18, to: 6, rounding: Ceil, expected: 1_000_001},
		{name: "6 to 9", amount: 1_500_000, from: 6, to: 9, rounding: Floor, expected: 1_500_000_000},
		{name: "same precision", amount: 42, from: 6, to: 6, rounding: Ceil, expected: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Rescale(tt.amount, tt.from, tt.to, tt.rounding)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
