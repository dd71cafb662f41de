package vault

import (
	"context"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
)

// StateView is a read-only picture of the vault at one instant.
type StateView struct {
	Authority         account.Address `json:"authority"`
	Ledger            Ledger          `json:"ledger"`
	SubAccounts       []SubAccount    `json:"sub_accounts"`
	UnvestedAmount    uint64          `json:"unvested_amount"`
	TotalAssets       uint64          `json:"total_assets"`
	TotalShares       uint64          `json:"total_shares"`
	MinShares         uint64          `json:"min_shares"`
	MinInitialDeposit uint64          `json:"min_initial_deposit"`
	MaxDeposit        uint64          `json:"max_deposit"`
	VestingPeriod     uint64          `json:"vesting_period"`
	Now               uint64          `json:"now"`
}

func (v *Vault) State(ctx context.Context) (StateView, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.unixNow()
	window := v.params.vestingSeconds()
	view := StateView{
		Authority:         v.authority,
		Ledger:            v.ledger,
		SubAccounts:       v.subs.List(),
		MinShares:         v.params.MinShares,
		MinInitialDeposit: v.params.MinInitialDeposit,
		MaxDeposit:        v.params.MaxDeposit,
		VestingPeriod:     window,
		Now:               now,
	}
	if !v.ledger.Initialized {
		return view, nil
	}

	var err error
	if view.UnvestedAmount, err = v.ledger.UnvestedAmount(now, window); err != nil {
		return StateView{}, arithmetic(err)
	}
	if view.TotalAssets, err = v.ledger.TotalAssets(now, window); err != nil {
		return StateView{}, arithmetic(err)
	}
	if view.TotalShares, err = v.assets.TotalSupply(ctx, v.ledger.ShareAsset); err != nil {
		return StateView{}, fmt.Errorf("read share supply: %w", err)
	}
	return view, nil
}

// Cooldown returns the cooldown owned by owner and payable to receiver.
func (v *Vault) Cooldown(ctx context.Context, owner, receiver account.Address) (Cooldown, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.ledger.Initialized {
		return Cooldown{}, ErrConfigNotInitialized
	}
	addr := CooldownAddress(v.authority, owner, receiver, v.ledger.BaseAsset)
	cd, ok := v.cooldowns[addr]
	if !ok || !cd.Initialized {
		return Cooldown{}, ErrCooldownNotInitialized
	}
	return cd, nil
}

// PreviewDeposit returns the shares a stake of assets would mint now.
func (v *Vault) PreviewDeposit(ctx context.Context, assets uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.ledger.Initialized {
		return 0, ErrConfigNotInitialized
	}
	if !v.ledger.HasInitialDeposit {
		return assets, nil
	}
	supply, err := v.assets.TotalSupply(ctx, v.ledger.ShareAsset)
	if err != nil {
		return 0, fmt.Errorf("read share supply: %w", err)
	}
	shares, err := v.ledger.PreviewDeposit(assets, supply, v.unixNow(), v.params.vestingSeconds())
	return shares, arithmetic(err)
}

// PreviewRedeem returns the base asset an unstake of shares would lock now.
func (v *Vault) PreviewRedeem(ctx context.Context, shares uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.ledger.Initialized {
		return 0, ErrConfigNotInitialized
	}
	supply, err := v.assets.TotalSupply(ctx, v.ledger.ShareAsset)
	if err != nil {
		return 0, fmt.Errorf("read share supply: %w", err)
	}
	assets, err := v.ledger.PreviewRedeem(shares, supply, v.unixNow(), v.params.vestingSeconds())
	return assets, arithmetic(err)
}
