package vault

import (
	"github.com/leafsii/leafsii-vault/internal/account"
)

// Cooldown holds base asset owed to Owner, releasable to Receiver once End has passed.
type Cooldown struct {
	Address     account.Address `json:"address"`
	Owner       account.Address `json:"owner"`
	Receiver    account.Address `json:"receiver"`
	Asset       string          `json:"asset"`
	Amount      uint64          `json:"amount"`
	End         uint64          `json:"end"`
	Initialized bool            `json:"initialized"`
}

// CooldownAddress keys a cooldown by holder and receiving address.
func CooldownAddress(authority, owner, receiver account.Address, asset string) account.Address {
	return account.Derive(CooldownSeed, authority, []byte(asset), receiver[:], owner[:])
}

// Active reports whether the cooldown still blocks withdrawal at now.
func (c Cooldown) Active(now uint64) bool {
	return c.End > now
}
