package account

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, a Address)
	}{
		{
			name:  "full length",
			input: "0x" + strings.Repeat("ab", 32),
			check: func(t *testing.T, a Address) {
				assert.Equal(t, byte(0xab), a[0])
				assert.Equal(t, byte(0xab), a[31])
			},
		},
		{
			name:  "short form is left padded",
			input: "0x1",
			check: func(t *testing.T, a Address) {
				assert.Equal(t, byte(1), a[31])
				assert.Equal(t, byte(0), a[0])
			},
		},
		{name: "no prefix", input: "ff"},
		{name: "empty", input: "0x", wantErr: true},
		{name: "too long", input: "0x" + strings.Repeat("00", 33), wantErr: true},
		{name: "not hex", input: "0xzz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, a)
			}
		})
	}
}

func TestAddressRoundTrip(t *testing.T) {
	a := MustParseAddress("0x1234")
	b, err := ParseAddress(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 66)
	assert.False(t, a.IsZero())
	assert.True(t, Zero.IsZero())
}

func TestAddressJSON(t *testing.T) {
	type wrapper struct {
		Owner Address `json:"owner"`
	}
	in := wrapper{Owner: MustParseAddress("0xbeef")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "000000beef")

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestDerive(t *testing.T) {
	owner := MustParseAddress("0x01")
	other := MustParseAddress("0x02")

	a := Derive("vault-silo", owner)
	assert.Equal(t, a, Derive("vault-silo", owner), "derivation must be deterministic")
	assert.NotEqual(t, a, Derive("vault-stake-pool", owner))
	assert.NotEqual(t, a, Derive("vault-silo", other))
	assert.NotEqual(t, a, Derive("vault-silo", owner, []byte("x")))
	assert.False(t, a.IsZero())
}

func TestProgramAddress(t *testing.T) {
	assert.Equal(t, ProgramAddress("leafsii-vault"), ProgramAddress("leafsii-vault"))
	assert.NotEqual(t, ProgramAddress("leafsii-vault"), ProgramAddress("other"))
}
