package vault

import (
	"context"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

func (v *Vault) AdjustCooldown(ctx context.Context, caller account.Address, d time.Duration) error {
	return v.execute(ctx, "adjust_cooldown", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if err := o.requireRoleOrAdmin(caller, guardian.RoleVaultAdmin); err != nil {
			return err
		}
		seconds, err := v.checkCooldown(d)
		if err != nil {
			return err
		}

		l := o.touchLedger()
		prev := l.CooldownDuration
		l.CooldownDuration = seconds

		o.emit(EventCooldownAdjusted, CooldownAdjusted{Previous: prev, Duration: seconds})
		return nil
	})
}

// ProposeAdmin records proposed as pending admin. It becomes admin only once
// it calls AcceptAdmin.
func (v *Vault) ProposeAdmin(ctx context.Context, caller, proposed account.Address) error {
	return v.execute(ctx, "propose_admin", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if caller != o.ledger.Admin {
			return ErrOnlyAdminCanProposeNewAdmin
		}
		if err := requireAddress(proposed); err != nil {
			return err
		}
		if proposed == o.ledger.PendingAdmin {
			return ErrProposedAdminAlreadySet.withf("%s already pending", proposed.ShortString())
		}
		if proposed == o.ledger.Admin {
			return ErrProposedAdminIsCurrentAdmin
		}

		l := o.touchLedger()
		if err := l.transitionAdmin(AdminProposed); err != nil {
			return err
		}
		l.PendingAdmin = proposed

		o.emit(EventAdminTransferProposed, AdminTransferProposed{CurrentAdmin: caller, ProposedAdmin: proposed})
		return nil
	})
}

func (v *Vault) AcceptAdmin(ctx context.Context, caller account.Address) error {
	return v.execute(ctx, "accept_admin", caller, func(o *op) error {
		if err := o.requireInitialized(); err != nil {
			return err
		}
		if o.ledger.PendingAdmin.IsZero() {
			return ErrNoPendingAdminTransfer
		}
		if caller != o.ledger.PendingAdmin {
			return ErrOnlyProposedAdminCanAccept
		}

		l := o.touchLedger()
		if err := l.transitionAdmin(AdminAccepted); err != nil {
			return err
		}
		prev := l.Admin
		l.Admin = caller
		l.PendingAdmin = account.Zero

		o.emit(EventAdminTransferCompleted, AdminTransferCompleted{PreviousAdmin: prev, NewAdmin: caller})
		return nil
	})
}
