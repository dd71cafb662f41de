package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

// RedistributeLocked moves the whole share balance of a deny-listed source to
// destination, or burns it when destination is nil.
func (v *Vault) RedistributeLocked(ctx context.Context, caller, source account.Address, destination *account.Address) (uint64, error) {
	var amount uint64
	err := v.execute(ctx, "redistribute_locked", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := o.requireRoleOrAdmin(caller, guardian.RoleVaultAdmin); err != nil {
			return err
		}
		if err := requireAddress(source); err != nil {
			return err
		}
		if err := o.requireDenied(source); err != nil {
			return err
		}
		if destination != nil {
			if err := requireAddress(*destination); err != nil {
				return err
			}
			if err := o.requireNotDenied(*destination); err != nil {
				return err
			}
		}

		locked, err := o.balance(o.ledger.ShareAsset, source)
		if err != nil {
			return err
		}
		if locked == 0 {
			return ErrNoLockedShares.withf("%s holds no shares", source.ShortString())
		}

		if err := o.tx.Redistribute(ctx, o.ledger.ShareAsset, v.authority, source, destination, locked); err != nil {
			return fmt.Errorf("redistribute locked shares: %w", err)
		}

		amount = locked
		o.emit(EventLockedSharesRedistributed, LockedSharesRedistributed{
			Authority: caller,
			From:      source,
			To:        destination,
			Amount:    locked,
			Burned:    destination == nil,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}
