package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
)

// Withdraw releases the base asset of caller's expired cooldown to receiver.
// The cooldown is zeroed before the transfer and can be reused by a later unstake.
func (v *Vault) Withdraw(ctx context.Context, caller, receiver account.Address) (uint64, error) {
	var amount uint64
	err := v.execute(ctx, "withdraw", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := requireAddress(caller, receiver); err != nil {
			return err
		}
		silo, err := o.subs.address(Silo)
		if err != nil {
			return err
		}

		cd, ok := o.cooldown(CooldownAddress(v.authority, caller, receiver, o.ledger.BaseAsset))
		if !ok || !cd.Initialized {
			return ErrCooldownNotInitialized
		}
		if cd.Active(o.now) {
			return ErrCooldownActive.withf("ends at %d, now %d", cd.End, o.now)
		}
		if cd.Owner != caller {
			return ErrInvalidCooldownOwner
		}
		if cd.Receiver != receiver {
			return ErrInvalidReceiver
		}
		if cd.Amount == 0 {
			return ErrAmountMustBeGreaterThanZero.withf("cooldown holds nothing")
		}
		siloBal, err := o.balance(o.ledger.BaseAsset, silo)
		if err != nil {
			return err
		}
		if siloBal < cd.Amount {
			return ErrInsufficientSubAccountAmount.withf("silo holds %d, owes %d", siloBal, cd.Amount)
		}
		if err := o.requireNotDenied(caller, receiver); err != nil {
			return err
		}

		amount = cd.Amount
		cd.Amount = 0
		cd.End = 0
		o.putCooldown(cd)

		l := o.touchLedger()
		owed, err := calc.CheckedSub(l.TotalCooldownAmount, amount)
		if err != nil {
			return arithmetic(err)
		}
		l.TotalCooldownAmount = owed

		if err := o.tx.Transfer(ctx, l.BaseAsset, silo, receiver, amount); err != nil {
			return fmt.Errorf("transfer base from silo: %w", err)
		}

		o.emit(EventBaseWithdrawn, BaseWithdrawn{Caller: caller, Receiver: receiver, Amount: amount})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}
