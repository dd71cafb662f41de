package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

// DistributeReward adds amount to the staked supply and starts a new vesting
// window for it. The previous reward must have fully vested.
func (v *Vault) DistributeReward(ctx context.Context, caller account.Address, amount uint64) error {
	return v.execute(ctx, "distribute_reward", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := o.requireRoleOrAdmin(caller, guardian.RoleRewardDistributor); err != nil {
			return err
		}
		stakePool, err := o.subs.address(StakePool)
		if err != nil {
			return err
		}
		if amount == 0 {
			return ErrAmountMustBeGreaterThanZero
		}
		bal, err := o.balance(o.ledger.BaseAsset, caller)
		if err != nil {
			return err
		}
		if bal < amount {
			return ErrInsufficientBaseBalance.withf("holds %d, needs %d", bal, amount)
		}

		window := v.params.vestingSeconds()
		unvested, err := o.ledger.UnvestedAmount(o.now, window)
		if err != nil {
			return arithmetic(err)
		}
		if unvested != 0 {
			return ErrStillVesting.withf("%d still unvested", unvested)
		}

		decimals, err := v.assets.Decimals(ctx, o.ledger.ShareAsset)
		if err != nil {
			return fmt.Errorf("read share decimals: %w", err)
		}
		floor, err := calc.CheckedPow(10, uint(decimals))
		if err != nil {
			return arithmetic(err)
		}
		supply, err := o.shareSupply()
		if err != nil {
			return err
		}
		if supply < floor {
			return ErrShareSupplyTooLow.withf("share supply %d below %d", supply, floor)
		}

		l := o.touchLedger()
		staked, err := calc.CheckedAdd(l.TotalStakedSupply, amount)
		if err != nil {
			return arithmetic(err)
		}
		l.VestingAmount = amount
		l.LastDistributionTime = o.now
		l.TotalStakedSupply = staked

		if err := o.tx.Transfer(ctx, l.BaseAsset, caller, stakePool, amount); err != nil {
			return fmt.Errorf("transfer reward to stake pool: %w", err)
		}

		o.emit(EventRewardDistributed, RewardDistributed{
			Distributor:       caller,
			Amount:            amount,
			TotalStakedSupply: l.TotalStakedSupply,
		})
		return nil
	})
}
