package calc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUIAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   uint64
		decimals uint8
		expected decimal.Decimal
	}{
		{name: "six decimals", amount: 1_500_000, decimals: 6, expected: decimal.NewFromFloat(1.5)},
		{name: "zero decimals", amount: 42, decimals: 0, expected: decimal.NewFromInt(42)},
		{name: "dust", amount: 1, decimals: 9, expected: decimal.New(1, -9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToUIAmount(tt.amount, tt.decimals)
			assert.True(t, tt.expected.Equal(result), "expected %s, got %s", tt.expected, result)
		})
	}
}

func TestToTokenAmount(t *testing.T) {
	v, err := ToTokenAmount(decimal.RequireFromString("1.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), v)

	v, err = ToTokenAmount(decimal.RequireFromString("0.0000019"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	_, err = ToTokenAmount(decimal.NewFromInt(-1), 6)
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = ToTokenAmount(decimal.RequireFromString("100000000000000"), 6)
	assert.ErrorIs(t, err, ErrMathOverflow)
}

func TestParseTokenAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected uint64
		wantErr  bool
	}{
		{name: "integer", input: "1000", expected: 1_000_000_000},
		{name: "fraction", input: "12.345678", expected: 12_345_678},
		{name: "trailing zeros", input: "1.5000000", expected: 1_500_000},
		{name: "too precise", input: "0.0000001", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseTokenAmount(tt.input, 6)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestValidateRange(t *testing.T) {
	assert.NoError(t, ValidateRange(5, 1, 10, "cooldown"))
	assert.NoError(t, ValidateRange(1, 1, 10, "cooldown"))
	assert.Error(t, ValidateRange(11, 1, 10, "cooldown"))
	assert.Error(t, ValidateRange(0, 1, 10, "cooldown"))
}

func TestValidateMinReceived(t *testing.T) {
	assert.NoError(t, ValidateMinReceived(10, 10, "stake"))
	assert.Error(t, ValidateMinReceived(9, 10, "stake"))
}
