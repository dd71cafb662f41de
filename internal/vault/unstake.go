package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

type UnstakeResult struct {
	Shares   uint64   `json:"shares"`
	Assets   uint64   `json:"assets"`
	Cooldown Cooldown `json:"cooldown"`
}

// Unstake burns shares of caller and moves the redeemed base asset into the
// silo under a cooldown payable to receiver. Unstaking again into the same
// cooldown adds to its amount and restarts the full waiting period.
func (v *Vault) Unstake(ctx context.Context, caller, receiver account.Address, shares uint64) (UnstakeResult, error) {
	return v.UnstakeAtLeast(ctx, caller, receiver, shares, 0)
}

// UnstakeAtLeast is Unstake that fails with ErrSlippageExceeded when the
// shares would redeem fewer than minAssets.
func (v *Vault) UnstakeAtLeast(ctx context.Context, caller, receiver account.Address, shares, minAssets uint64) (UnstakeResult, error) {
	var res UnstakeResult
	err := v.execute(ctx, "unstake", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := requireAddress(caller, receiver); err != nil {
			return err
		}
		if err := o.requireRoleOrAdmin(caller, guardian.RoleShareRedeemer); err != nil {
			return err
		}
		if err := o.requireNotDenied(caller); err != nil {
			return err
		}
		stakePool, err := o.subs.address(StakePool)
		if err != nil {
			return err
		}
		silo, err := o.subs.address(Silo)
		if err != nil {
			return err
		}
		holding, err := o.subs.address(ShareHolding)
		if err != nil {
			return err
		}

		if shares == 0 {
			return ErrAmountMustBeGreaterThanZero
		}
		held, err := o.balance(o.ledger.ShareAsset, caller)
		if err != nil {
			return err
		}
		if held < shares {
			return ErrInsufficientShares.withf("holds %d, needs %d", held, shares)
		}
		totalShares, err := o.shareSupply()
		if err != nil {
			return err
		}
		assets, err := o.ledger.PreviewRedeem(shares, totalShares, o.now, v.params.vestingSeconds())
		if err != nil {
			return arithmetic(err)
		}
		if assets == 0 {
			return ErrInvalidPreviewRedeemAmount.withf("%d shares", shares)
		}
		if err := calc.ValidateMinReceived(assets, minAssets, "unstake"); err != nil {
			return ErrSlippageExceeded.wrap(err)
		}
		if o.ledger.TotalStakedSupply < assets {
			return ErrInsufficientStakedSupply.withf("staked %d, redeeming %d", o.ledger.TotalStakedSupply, assets)
		}

		addr := CooldownAddress(v.authority, caller, receiver, o.ledger.BaseAsset)
		cd, exists := o.cooldown(addr)
		if exists && cd.Initialized && cd.Owner != caller {
			return ErrInvalidCooldownOwner
		}

		l := o.touchLedger()
		l.TotalStakedSupply -= assets
		owed, err := calc.CheckedAdd(l.TotalCooldownAmount, assets)
		if err != nil {
			return arithmetic(err)
		}
		l.TotalCooldownAmount = owed

		end, err := calc.CheckedAdd(o.now, l.CooldownDuration)
		if err != nil {
			return arithmetic(err)
		}
		if !exists || !cd.Initialized {
			cd = Cooldown{
				Address:     addr,
				Owner:       caller,
				Receiver:    receiver,
				Asset:       l.BaseAsset,
				Initialized: true,
			}
		}
		total, err := calc.CheckedAdd(cd.Amount, assets)
		if err != nil {
			return arithmetic(err)
		}
		cd.Amount = total
		cd.End = end
		o.putCooldown(cd)

		if err := o.tx.Transfer(ctx, l.ShareAsset, caller, holding, shares); err != nil {
			return fmt.Errorf("transfer shares to holding: %w", err)
		}
		if err := o.tx.Burn(ctx, l.ShareAsset, v.authority, holding, shares); err != nil {
			return fmt.Errorf("burn shares: %w", err)
		}
		if err := o.tx.Transfer(ctx, l.BaseAsset, stakePool, silo, assets); err != nil {
			return fmt.Errorf("move base to silo: %w", err)
		}

		supply, err := o.shareSupply()
		if err != nil {
			return err
		}
		if err := l.CheckMinShares(supply, v.params.MinShares); err != nil {
			return err
		}

		res = UnstakeResult{Shares: shares, Assets: assets, Cooldown: cd}
		o.emit(EventCooldownStarted, CooldownStarted{
			Owner:       caller,
			Receiver:    receiver,
			Shares:      shares,
			Assets:      assets,
			TotalAmount: cd.Amount,
			CooldownEnd: cd.End,
		})
		return nil
	})
	return res, err
}
