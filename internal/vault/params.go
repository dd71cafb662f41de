package vault

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
)

const (
	DefaultVestingPeriod = 8 * time.Hour

	MinCooldownDuration        = time.Hour
	TestnetMinCooldownDuration = time.Duration(0)
	DefaultCooldownDuration    = 7 * 24 * time.Hour
	MaxCooldownDuration        = 30 * 24 * time.Hour

	DefaultMinShares         uint64 = 1_000_000
	DefaultMinInitialDeposit uint64 = 1_000_000
)

const (
	ConfigSeed       = "vault-config"
	StakePoolSeed    = "vault-stake-pool"
	SiloSeed         = "vault-silo"
	ShareHoldingSeed = "vault-share-holding"
	BaseHoldingSeed  = "vault-base-holding"
	CooldownSeed     = "vault-cooldown"
)

type Params struct {
	ProgramID      account.Address
	RoleRegistryID account.Address
	BaseAsset      string
	ShareAsset     string
	// BootstrapAdmin, when set, is the only caller allowed to initialize the vault.
	BootstrapAdmin account.Address

	MinShares         uint64
	MinInitialDeposit uint64
	MaxDeposit        uint64
	VestingPeriod     time.Duration
	MinCooldown       time.Duration
	MaxCooldown       time.Duration

	// Collateral lists the assets accepted for minting base 1:1. Deposits
	// land in Fund and redemptions are paid out of it.
	Collateral []string
	Fund       account.Address
}

func DefaultParams() Params {
	return Params{
		ProgramID:         account.ProgramAddress("leafsii-vault"),
		BaseAsset:         "USDU",
		ShareAsset:        "SUSDU",
		MinShares:         DefaultMinShares,
		MinInitialDeposit: DefaultMinInitialDeposit,
		MaxDeposit:        math.MaxUint64,
		VestingPeriod:     DefaultVestingPeriod,
		MinCooldown:       MinCooldownDuration,
		MaxCooldown:       MaxCooldownDuration,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.ProgramID.IsZero() {
		errs = append(errs, errors.New("program id is required"))
	}
	if p.RoleRegistryID.IsZero() {
		errs = append(errs, errors.New("role registry id is required"))
	}
	if p.BaseAsset == "" || p.ShareAsset == "" {
		errs = append(errs, errors.New("base and share asset ids are required"))
	}
	if p.BaseAsset == p.ShareAsset {
		errs = append(errs, fmt.Errorf("base and share asset must differ, both are %q", p.BaseAsset))
	}
	if p.MaxDeposit == 0 {
		errs = append(errs, errors.New("max deposit must be positive"))
	}
	if p.VestingPeriod < time.Second {
		errs = append(errs, fmt.Errorf("vesting period %s is shorter than one second", p.VestingPeriod))
	}
	if p.MinCooldown < 0 || p.MinCooldown > p.MaxCooldown {
		errs = append(errs, fmt.Errorf("cooldown bounds [%s, %s] are invalid", p.MinCooldown, p.MaxCooldown))
	}
	seen := make(map[string]bool, len(p.Collateral))
	for _, c := range p.Collateral {
		switch {
		case c == "":
			errs = append(errs, errors.New("collateral asset id is empty"))
		case c == p.BaseAsset || c == p.ShareAsset:
			errs = append(errs, fmt.Errorf("collateral asset %q is the base or share asset", c))
		case seen[c]:
			errs = append(errs, fmt.Errorf("collateral asset %q listed twice", c))
		}
		seen[c] = true
	}
	if len(p.Collateral) > 0 && p.Fund.IsZero() {
		errs = append(errs, errors.New("fund address is required when collateral is accepted"))
	}
	return errors.Join(errs...)
}

func (p Params) supportsCollateral(asset string) bool {
	for _, c := range p.Collateral {
		if c == asset {
			return true
		}
	}
	return false
}

// Authority is the address the vault signs collaborator calls with.
func (p Params) Authority() account.Address {
	return account.Derive(ConfigSeed, p.ProgramID)
}

func (p Params) vestingSeconds() uint64 {
	return uint64(p.VestingPeriod / time.Second)
}

func (p Params) cooldownBounds() (uint64, uint64) {
	return uint64(p.MinCooldown / time.Second), uint64(p.MaxCooldown / time.Second)
}
