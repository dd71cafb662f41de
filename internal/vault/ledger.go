package vault

import (
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
)

// AdminPhase tracks the two-phase admin transfer: Unset -> Proposed -> Accepted.
// A new proposal may follow an accepted transfer.
type AdminPhase int

const (
	AdminUnset AdminPhase = iota
	AdminProposed
	AdminAccepted
)

func (p AdminPhase) String() string {
	switch p {
	case AdminUnset:
		return "unset"
	case AdminProposed:
		return "proposed"
	case AdminAccepted:
		return "accepted"
	default:
		return fmt.Sprintf("admin_phase(%d)", int(p))
	}
}

func (p AdminPhase) CanTransition(to AdminPhase) bool {
	switch p {
	case AdminUnset, AdminAccepted:
		return to == AdminProposed
	case AdminProposed:
		// re-proposing replaces the pending admin
		return to == AdminProposed || to == AdminAccepted
	default:
		return false
	}
}

// Ledger is the vault's singleton record. Times are unix seconds.
type Ledger struct {
	Initialized          bool            `json:"initialized"`
	Admin                account.Address `json:"admin"`
	PendingAdmin         account.Address `json:"pending_admin"`
	AdminPhase           AdminPhase      `json:"admin_phase"`
	BaseAsset            string          `json:"base_asset"`
	ShareAsset           string          `json:"share_asset"`
	RoleRegistry         account.Address `json:"role_registry"`
	CooldownDuration     uint64          `json:"cooldown_duration"`
	TotalStakedSupply    uint64          `json:"total_staked_supply"`
	VestingAmount        uint64          `json:"vesting_amount"`
	LastDistributionTime uint64          `json:"last_distribution_time"`
	HasInitialDeposit    bool            `json:"has_initial_deposit"`
	TotalCooldownAmount  uint64          `json:"total_cooldown_amount"`
	InitializedAt        uint64          `json:"initialized_at"`
}

// UnvestedAmount is the part of the last reward still amortizing at now. A
// clock behind the last distribution counts as no time elapsed, so the whole
// reward stays unvested.
func (l *Ledger) UnvestedAmount(now, window uint64) (uint64, error) {
	var elapsed uint64
	if now > l.LastDistributionTime {
		elapsed = now - l.LastDistributionTime
	}
	return calc.UnvestedAmount(l.VestingAmount, elapsed, window)
}

// TotalAssets is the staked supply net of unvested rewards, the value shares are priced against.
func (l *Ledger) TotalAssets(now, window uint64) (uint64, error) {
	unvested, err := l.UnvestedAmount(now, window)
	if err != nil {
		return 0, err
	}
	return calc.CheckedSub(l.TotalStakedSupply, unvested)
}

func (l *Ledger) ConvertToShares(assets, totalShares, now, window uint64, rounding calc.Rounding) (uint64, error) {
	totalAssets, err := l.TotalAssets(now, window)
	if err != nil {
		return 0, err
	}
	return calc.ConvertToShares(assets, totalShares, totalAssets, rounding)
}

func (l *Ledger) ConvertToAssets(shares, totalShares, now, window uint64, rounding calc.Rounding) (uint64, error) {
	totalAssets, err := l.TotalAssets(now, window)
	if err != nil {
		return 0, err
	}
	return calc.ConvertToAssets(shares, totalShares, totalAssets, rounding)
}

// PreviewDeposit rounds down so a deposit never dilutes existing holders.
func (l *Ledger) PreviewDeposit(assets, totalShares, now, window uint64) (uint64, error) {
	return l.ConvertToShares(assets, totalShares, now, window, calc.Floor)
}

// PreviewRedeem rounds down so the vault never releases more than it holds.
func (l *Ledger) PreviewRedeem(shares, totalShares, now, window uint64) (uint64, error) {
	return l.ConvertToAssets(shares, totalShares, now, window, calc.Floor)
}

func (l *Ledger) CheckInitialDeposit(amount, minimum uint64) error {
	if l.HasInitialDeposit || amount >= minimum {
		return nil
	}
	return ErrInitialDepositTooSmall.withf("first deposit %d is below %d", amount, minimum)
}

// CheckMinShares rejects a share supply strictly between zero and minimum.
func (l *Ledger) CheckMinShares(totalShares, minimum uint64) error {
	if totalShares == 0 || totalShares >= minimum {
		return nil
	}
	return ErrInsufficientMinShares.withf("share supply %d is below %d", totalShares, minimum)
}

func (l *Ledger) transitionAdmin(to AdminPhase) error {
	if !l.AdminPhase.CanTransition(to) {
		return ErrInvalidAdminTransition.withf("%s -> %s", l.AdminPhase, to)
	}
	l.AdminPhase = to
	return nil
}
