// Package account defines the 32-byte addresses used for holders, registries
// and vault-controlled sub-accounts, and the seed-based derivation of the latter.
package account

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const AddressLength = 32

var ErrInvalidAddress = errors.New("invalid address")

type Address [AddressLength]byte

// Zero is the empty address; it never identifies a holder.
var Zero Address

func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) == 0 || len(raw) > AddressLength*2 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	// short forms are left padded, 0x1 == 0x00..01
	copy(a[AddressLength-len(b):], b)
	return a, nil
}

func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) ShortString() string {
	s := hex.EncodeToString(a[:])
	return "0x" + s[:6] + ".." + s[len(s)-4:]
}

func (a Address) IsZero() bool {
	return a == Zero
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Derive returns the address controlled by owner under the given seed label:
// blake2b-256(seed || 0x00 || owner || extra...).
func Derive(seed string, owner Address, extra ...[]byte) Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(seed))
	h.Write([]byte{0})
	h.Write(owner[:])
	for _, e := range extra {
		h.Write(e)
	}
	var out Address
	copy(out[:], h.Sum(nil))
	return out
}

// ProgramAddress derives a root identity from a label alone, used for the vault program id.
func ProgramAddress(label string) Address {
	return Address(blake2b.Sum256([]byte(label)))
}
