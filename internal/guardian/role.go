package guardian

import (
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
)

type Role string

const (
	RoleShareMinter       Role = "share_minter"
	RoleShareRedeemer     Role = "share_redeemer"
	RoleRewardDistributor Role = "reward_distributor"
	RoleVaultAdmin        Role = "vault_admin"
	RoleGrandMaster       Role = "grand_master"

	RoleCollateralDepositor  Role = "collateral_depositor"
	RoleCollateralWithdrawer Role = "collateral_withdrawer"
)

var allRoles = []Role{
	RoleShareMinter,
	RoleShareRedeemer,
	RoleRewardDistributor,
	RoleVaultAdmin,
	RoleGrandMaster,
	RoleCollateralDepositor,
	RoleCollateralWithdrawer,
}

func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Status is the lifecycle of a role record: Unset -> Active -> Revoked, and
// Revoked -> Active when the role is granted again.
type Status int

const (
	StatusUnset Status = iota
	StatusActive
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusActive:
		return "active"
	case StatusRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusUnset:
		return to == StatusActive
	case StatusActive:
		return to == StatusRevoked
	case StatusRevoked:
		return to == StatusActive
	default:
		return false
	}
}

// RoleRecord grants one role to one owner inside one registry.
type RoleRecord struct {
	Registry  account.Address `json:"registry"`
	Owner     account.Address `json:"owner"`
	Role      Role            `json:"role"`
	Status    Status          `json:"status"`
	UpdatedAt int64           `json:"updated_at"`
}

func (r RoleRecord) Active() bool {
	return r.Status == StatusActive
}

type recordKey struct {
	owner account.Address
	role  Role
}
