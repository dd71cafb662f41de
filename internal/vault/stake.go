package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

type StakeResult struct {
	Assets uint64 `json:"assets"`
	Shares uint64 `json:"shares"`
}

// Stake moves amount of base asset from caller into the stake pool and mints
// shares to receiver. The first deposit mints 1:1.
func (v *Vault) Stake(ctx context.Context, caller, receiver account.Address, amount uint64) (StakeResult, error) {
	return v.StakeAtLeast(ctx, caller, receiver, amount, 0)
}

// StakeAtLeast is Stake that fails with ErrSlippageExceeded when the deposit
// would mint fewer than minShares.
func (v *Vault) StakeAtLeast(ctx context.Context, caller, receiver account.Address, amount, minShares uint64) (StakeResult, error) {
	var res StakeResult
	err := v.execute(ctx, "stake", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := requireAddress(caller, receiver); err != nil {
			return err
		}
		if err := o.requireRoleOrAdmin(caller, guardian.RoleShareMinter); err != nil {
			return err
		}
		if err := o.requireNotDenied(caller, receiver); err != nil {
			return err
		}
		stakePool, err := o.subs.address(StakePool)
		if err != nil {
			return err
		}

		if amount == 0 {
			return ErrAmountMustBeGreaterThanZero
		}
		if err := o.ledger.CheckInitialDeposit(amount, v.params.MinInitialDeposit); err != nil {
			return err
		}
		if amount > v.params.MaxDeposit {
			return ErrMaxDepositExceeded.withf("%d exceeds %d", amount, v.params.MaxDeposit)
		}
		bal, err := o.balance(o.ledger.BaseAsset, caller)
		if err != nil {
			return err
		}
		if bal < amount {
			return ErrInsufficientBaseBalance.withf("holds %d, needs %d", bal, amount)
		}

		totalShares, err := o.shareSupply()
		if err != nil {
			return err
		}
		shares := amount
		if o.ledger.HasInitialDeposit {
			shares, err = o.ledger.PreviewDeposit(amount, totalShares, o.now, v.params.vestingSeconds())
			if err != nil {
				return arithmetic(err)
			}
		}
		if shares == 0 {
			return ErrInvalidPreviewDepositAmount.withf("%d assets", amount)
		}
		if err := calc.ValidateMinReceived(shares, minShares, "stake"); err != nil {
			return ErrSlippageExceeded.wrap(err)
		}

		l := o.touchLedger()
		staked, err := calc.CheckedAdd(l.TotalStakedSupply, amount)
		if err != nil {
			return arithmetic(err)
		}
		l.TotalStakedSupply = staked

		if err := o.tx.Transfer(ctx, l.BaseAsset, caller, stakePool, amount); err != nil {
			return fmt.Errorf("transfer base to stake pool: %w", err)
		}
		if err := o.tx.Mint(ctx, l.ShareAsset, v.authority, receiver, shares); err != nil {
			return fmt.Errorf("mint shares: %w", err)
		}
		l.HasInitialDeposit = true

		// re-read after minting
		supply, err := o.shareSupply()
		if err != nil {
			return err
		}
		if err := l.CheckMinShares(supply, v.params.MinShares); err != nil {
			return err
		}

		res = StakeResult{Assets: amount, Shares: shares}
		o.emit(EventSharesMinted, SharesMinted{
			Caller:            caller,
			Receiver:          receiver,
			Assets:            amount,
			Shares:            shares,
			TotalStakedSupply: l.TotalStakedSupply,
		})
		return nil
	})
	return res, err
}
