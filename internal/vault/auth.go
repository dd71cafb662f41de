package vault

import (
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/guardian"
)

// requireRoleOrAdmin passes the vault admin and any holder of role in the
// vault's role registry.
func (o *op) requireRoleOrAdmin(caller account.Address, role guardian.Role) error {
	if caller == o.ledger.Admin {
		return nil
	}
	ok, err := o.v.roles.HasRole(o.ctx, o.ledger.RoleRegistry, caller, role)
	if err != nil {
		return fmt.Errorf("check %s role: %w", role, err)
	}
	if !ok {
		return ErrUnauthorizedRole.withf("%s lacks %s", caller.ShortString(), role)
	}
	return nil
}

func (o *op) requireAdmin(caller account.Address) error {
	if caller != o.ledger.Admin {
		return ErrUnauthorized.withf("%s is not the vault admin", caller.ShortString())
	}
	return nil
}

func (o *op) isDenied(addr account.Address) (bool, error) {
	denied, err := o.v.deny.IsDenied(o.ctx, addr)
	if err != nil {
		return false, fmt.Errorf("check deny-list for %s: %w", addr.ShortString(), err)
	}
	return denied, nil
}

func (o *op) requireNotDenied(addrs ...account.Address) error {
	for _, addr := range addrs {
		denied, err := o.isDenied(addr)
		if err != nil {
			return err
		}
		if denied {
			return ErrDenied.withf("%s is deny-listed", addr.ShortString())
		}
	}
	return nil
}

func (o *op) requireDenied(addr account.Address) error {
	denied, err := o.isDenied(addr)
	if err != nil {
		return err
	}
	if !denied {
		return ErrNotDenied.withf("%s is not deny-listed", addr.ShortString())
	}
	return nil
}

func requireAddress(addrs ...account.Address) error {
	for _, a := range addrs {
		if a.IsZero() {
			return ErrInvalidAddress
		}
	}
	return nil
}
