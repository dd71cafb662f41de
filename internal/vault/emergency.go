package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

// EmergencyWithdraw moves amount out of a sub-account to receiver, bypassing
// the cooldown flow. Draining the stake pool also lowers the staked supply.
func (v *Vault) EmergencyWithdraw(ctx context.Context, caller account.Address, kind SubAccountKind, receiver account.Address, amount uint64) error {
	return v.execute(ctx, "emergency_withdraw_"+string(kind), caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := o.requireRoleOrAdmin(caller, guardian.RoleVaultAdmin); err != nil {
			return err
		}
		if err := requireAddress(receiver); err != nil {
			return err
		}
		if _, ok := kind.seed(); !ok {
			return ErrInvalidSubAccount.withf("%q", kind)
		}
		from, err := o.subs.address(kind)
		if err != nil {
			return err
		}
		if amount == 0 {
			return ErrAmountMustBeGreaterThanZero
		}

		asset := o.ledger.BaseAsset
		if kind.holdsShares() {
			asset = o.ledger.ShareAsset
		}
		bal, err := o.balance(asset, from)
		if err != nil {
			return err
		}
		if bal < amount {
			return ErrInsufficientSubAccountAmount.withf("%s holds %d, needs %d", kind, bal, amount)
		}

		if kind == StakePool {
			l := o.touchLedger()
			if l.TotalStakedSupply < amount {
				return ErrInsufficientStakedSupply.withf("staked %d, withdrawing %d", l.TotalStakedSupply, amount)
			}
			l.TotalStakedSupply -= amount
		}

		if err := o.tx.Transfer(ctx, asset, from, receiver, amount); err != nil {
			return fmt.Errorf("emergency transfer from %s: %w", kind, err)
		}

		o.emit(EventEmergencyWithdrawal, EmergencyWithdrawal{
			Authority:   caller,
			SubAccount:  kind,
			Asset:       asset,
			Amount:      amount,
			Destination: receiver,
		})
		return nil
	})
}
