package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

// CollateralOrder is one mint or redemption of base against collateral. The
// caller quotes both amounts; the vault only moves them.
type CollateralOrder struct {
	Benefactor       account.Address
	Beneficiary      account.Address
	CollateralAsset  string
	CollateralAmount uint64
	BaseAmount       uint64
}

// DepositCollateralMintBase pulls CollateralAmount from the benefactor into
// the fund and mints BaseAmount to the beneficiary. The benefactor must have
// approved the vault authority for the collateral beforehand.
func (v *Vault) DepositCollateralMintBase(ctx context.Context, caller account.Address, order CollateralOrder) error {
	return v.execute(ctx, "deposit_collateral", caller, func(o *op) error {
		if err := o.checkOrder(caller, order, guardian.RoleCollateralDepositor); err != nil {
			return err
		}
		if err := o.requireFunds(order.CollateralAsset, order.Benefactor, order.CollateralAmount, ErrInsufficientCollateral); err != nil {
			return err
		}

		fund := v.params.Fund
		if err := o.tx.TransferFrom(ctx, order.CollateralAsset, v.authority, order.Benefactor, fund, order.CollateralAmount); err != nil {
			return fmt.Errorf("pull collateral: %w", err)
		}
		if err := o.tx.Mint(ctx, o.ledger.BaseAsset, v.authority, order.Beneficiary, order.BaseAmount); err != nil {
			return fmt.Errorf("mint base: %w", err)
		}

		o.emit(EventCollateralDeposited, CollateralDeposited{
			Benefactor:       order.Benefactor,
			Beneficiary:      order.Beneficiary,
			Fund:             fund,
			CollateralAsset:  order.CollateralAsset,
			CollateralAmount: order.CollateralAmount,
			BaseAmount:       order.BaseAmount,
		})
		return nil
	})
}

// RedeemBaseWithdrawCollateral pulls BaseAmount from the beneficiary into the
// base holding account and burns it, then pays CollateralAmount out of the
// fund to the benefactor. Both the beneficiary and the fund must have
// approved the vault authority.
func (v *Vault) RedeemBaseWithdrawCollateral(ctx context.Context, caller account.Address, order CollateralOrder) error {
	return v.execute(ctx, "redeem_collateral", caller, func(o *op) error {
		if err := o.checkOrder(caller, order, guardian.RoleCollateralWithdrawer); err != nil {
			return err
		}
		holding, err := o.subs.address(BaseHolding)
		if err != nil {
			return err
		}
		fund := v.params.Fund
		if err := o.requireFunds(order.CollateralAsset, fund, order.CollateralAmount, ErrInsufficientCollateral); err != nil {
			return err
		}
		if err := o.requireFunds(o.ledger.BaseAsset, order.Beneficiary, order.BaseAmount, ErrInsufficientBaseAllowance); err != nil {
			return err
		}

		if err := o.tx.TransferFrom(ctx, o.ledger.BaseAsset, v.authority, order.Beneficiary, holding, order.BaseAmount); err != nil {
			return fmt.Errorf("pull base: %w", err)
		}
		if err := o.tx.Burn(ctx, o.ledger.BaseAsset, v.authority, holding, order.BaseAmount); err != nil {
			return fmt.Errorf("burn base: %w", err)
		}
		if err := o.tx.TransferFrom(ctx, order.CollateralAsset, v.authority, fund, order.Benefactor, order.CollateralAmount); err != nil {
			return fmt.Errorf("pay collateral: %w", err)
		}

		o.emit(EventCollateralRedeemed, CollateralRedeemed{
			Benefactor:       order.Benefactor,
			Beneficiary:      order.Beneficiary,
			Fund:             fund,
			CollateralAsset:  order.CollateralAsset,
			CollateralAmount: order.CollateralAmount,
			BaseAmount:       order.BaseAmount,
		})
		return nil
	})
}

func (o *op) checkOrder(caller account.Address, order CollateralOrder, role guardian.Role) error {
	if err := o.requireInitialized(); err != nil {
		return err
	}
	if err := requireAddress(caller, order.Benefactor, order.Beneficiary); err != nil {
		return err
	}
	if order.CollateralAmount == 0 || order.BaseAmount == 0 {
		return ErrAmountMustBeGreaterThanZero
	}
	if !o.v.params.supportsCollateral(order.CollateralAsset) {
		return ErrCollateralMismatch.withf("%q", order.CollateralAsset)
	}
	if err := o.requireRoleOrAdmin(caller, role); err != nil {
		return err
	}
	return o.requireNotDenied(order.Benefactor, order.Beneficiary)
}

// requireFunds checks that owner both holds amount of asset and has let the
// vault authority move it.
func (o *op) requireFunds(asset string, owner account.Address, amount uint64, short *Error) error {
	allowed, err := o.v.assets.Allowance(o.ctx, asset, owner, o.v.authority)
	if err != nil {
		return fmt.Errorf("read %s allowance: %w", asset, err)
	}
	if allowed < amount {
		return short.withf("%s approved %d %s, needs %d", owner.ShortString(), allowed, asset, amount)
	}
	bal, err := o.balance(asset, owner)
	if err != nil {
		return err
	}
	if bal < amount {
		return short.withf("%s holds %d %s, needs %d", owner.ShortString(), bal, asset, amount)
	}
	return nil
}
