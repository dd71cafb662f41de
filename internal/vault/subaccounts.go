package vault

import (
	"fmt"
	"sort"

	"github.com/leafsii/leafsii-vault/internal/account"
)

// SubAccountKind names one of the custodial balances only the vault authority moves.
type SubAccountKind string

const (
	StakePool    SubAccountKind = "stake_pool"
	Silo         SubAccountKind = "silo"
	ShareHolding SubAccountKind = "share_holding"
	BaseHolding  SubAccountKind = "base_holding"
)

var subAccountKinds = []SubAccountKind{StakePool, Silo, ShareHolding, BaseHolding}

func SubAccountKinds() []SubAccountKind {
	out := make([]SubAccountKind, len(subAccountKinds))
	copy(out, subAccountKinds)
	return out
}

func ParseSubAccountKind(s string) (SubAccountKind, error) {
	k := SubAccountKind(s)
	if _, ok := k.seed(); !ok {
		return "", ErrInvalidSubAccount.withf("%q", s)
	}
	return k, nil
}

func (k SubAccountKind) seed() (string, bool) {
	switch k {
	case StakePool:
		return StakePoolSeed, true
	case Silo:
		return SiloSeed, true
	case ShareHolding:
		return ShareHoldingSeed, true
	case BaseHolding:
		return BaseHoldingSeed, true
	default:
		return "", false
	}
}

// holdsShares reports whether the sub-account holds the share asset rather than the base asset.
func (k SubAccountKind) holdsShares() bool {
	return k == ShareHolding
}

// DeriveSubAccount returns the address of kind under the vault authority.
func DeriveSubAccount(kind SubAccountKind, authority account.Address) (account.Address, error) {
	seed, ok := kind.seed()
	if !ok {
		return account.Zero, ErrInvalidSubAccount.withf("%q", kind)
	}
	return account.Derive(seed, authority), nil
}

type SubAccount struct {
	Kind      SubAccountKind  `json:"kind"`
	Seed      string          `json:"seed"`
	Address   account.Address `json:"address"`
	Asset     string          `json:"asset"`
	CreatedAt uint64          `json:"created_at"`
}

// SubAccounts is the vault's singleton sub-account registry.
type SubAccounts map[SubAccountKind]SubAccount

func (s SubAccounts) clone() SubAccounts {
	out := make(SubAccounts, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s SubAccounts) address(kind SubAccountKind) (account.Address, error) {
	sub, ok := s[kind]
	if !ok {
		return account.Zero, ErrSubAccountNotInitialized.withf("%s", kind)
	}
	return sub.Address, nil
}

func (s SubAccounts) List() []SubAccount {
	out := make([]SubAccount, 0, len(s))
	for _, sub := range s {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (s SubAccounts) String() string {
	return fmt.Sprintf("%d/%d sub-accounts", len(s), len(subAccountKinds))
}
