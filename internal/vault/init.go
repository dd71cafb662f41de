package vault

import (
	"context"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
)

// InitVault creates the vault ledger with caller as admin. A zero cooldown
// selects DefaultCooldownDuration.
func (v *Vault) InitVault(ctx context.Context, caller account.Address, cooldown time.Duration) error {
	return v.execute(ctx, "init_vault", caller, func(o *op) error {
		if o.ledger.Initialized {
			return ErrConfigAlreadyInitialized
		}
		if err := requireAddress(caller); err != nil {
			return err
		}
		if boot := v.params.BootstrapAdmin; !boot.IsZero() && caller != boot {
			return ErrUnauthorized.withf("%s is not the bootstrap admin", caller.ShortString())
		}
		if cooldown == 0 {
			cooldown = DefaultCooldownDuration
		}
		seconds, err := v.checkCooldown(cooldown)
		if err != nil {
			return err
		}

		l := o.touchLedger()
		*l = Ledger{
			Initialized:      true,
			Admin:            caller,
			BaseAsset:        v.params.BaseAsset,
			ShareAsset:       v.params.ShareAsset,
			RoleRegistry:     v.params.RoleRegistryID,
			CooldownDuration: seconds,
			InitializedAt:    o.now,
		}

		o.emit(EventVaultInitialized, VaultInitialized{
			Vault:            v.authority,
			Admin:            caller,
			BaseAsset:        l.BaseAsset,
			ShareAsset:       l.ShareAsset,
			RoleRegistry:     l.RoleRegistry,
			CooldownDuration: seconds,
		})
		return nil
	})
}

// InitSubAccount creates one custodial sub-account. Each kind is created once.
func (v *Vault) InitSubAccount(ctx context.Context, caller account.Address, kind SubAccountKind) (SubAccount, error) {
	var created SubAccount
	err := v.execute(ctx, "init_sub_account", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := o.requireAdmin(caller); err != nil {
			return err
		}
		seed, ok := kind.seed()
		if !ok {
			return ErrInvalidSubAccount.withf("%q", kind)
		}
		if _, exists := o.subs[kind]; exists {
			return ErrSubAccountAlreadyInitialized.withf("%s", kind)
		}

		addr, err := DeriveSubAccount(kind, v.authority)
		if err != nil {
			return err
		}
		asset := o.ledger.BaseAsset
		if kind.holdsShares() {
			asset = o.ledger.ShareAsset
		}
		created = SubAccount{Kind: kind, Seed: seed, Address: addr, Asset: asset, CreatedAt: o.now}
		o.subs[kind] = created
		o.subsDirty = true

		o.emit(EventSubAccountInitialized, SubAccountInitialized{Kind: kind, Address: addr, Asset: asset})
		return nil
	})
	return created, err
}

func (v *Vault) checkCooldown(d time.Duration) (uint64, error) {
	if d < 0 || d%time.Second != 0 {
		return 0, ErrInvalidCooldownDuration.withf("%s is not a whole number of seconds", d)
	}
	seconds := uint64(d / time.Second)
	lo, hi := v.params.cooldownBounds()
	if seconds < lo || seconds > hi {
		return 0, ErrInvalidCooldownDuration.withf("%s outside [%s, %s]", d, v.params.MinCooldown, v.params.MaxCooldown)
	}
	return seconds, nil
}
