package vault

import (
	"testing"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminPhaseTransitions(t *testing.T) {
	tests := []struct {
		from AdminPhase
		to   AdminPhase
		ok   bool
	}{
		{AdminUnset, AdminProposed, true},
		{AdminUnset, AdminAccepted, false},
		{AdminProposed, AdminProposed, true},
		{AdminProposed, AdminAccepted, true},
		{AdminAccepted, AdminProposed, true},
		{AdminAccepted, AdminAccepted, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestProposeAdmin(t *testing.T) {
	tests := []struct {
		name     string
		pending  account.Address
		caller   account.Address
		proposed account.Address
		err      error
	}{
		{name: "admin proposes", caller: admin, proposed: carol},
		{name: "non admin", caller: alice, proposed: carol, err: ErrOnlyAdminCanProposeNewAdmin},
		{name: "vault_admin role is not enough", caller: dave, proposed: carol, err: ErrOnlyAdminCanProposeNewAdmin},
		{name: "current admin", caller: admin, proposed: admin, err: ErrProposedAdminIsCurrentAdmin},
		{name: "same pending", pending: carol, caller: admin, proposed: carol, err: ErrProposedAdminAlreadySet},
		{name: "replace pending", pending: carol, caller: admin, proposed: bob},
		{name: "zero address", caller: admin, proposed: account.Zero, err: ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.roles.Grant(f.ctx, roleAdmin, dave, "vault_admin"))
			if !tt.pending.IsZero() {
				require.NoError(t, f.vault.ProposeAdmin(f.ctx, admin, tt.pending))
			}

			err := f.vault.ProposeAdmin(f.ctx, tt.caller, tt.proposed)
			l := f.state().Ledger
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, tt.pending, l.PendingAdmin)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.proposed, l.PendingAdmin)
			assert.Equal(t, AdminProposed, l.AdminPhase)
			assert.Equal(t, admin, l.Admin)
		})
	}
}

func TestAcceptAdmin(t *testing.T) {
	f := newFixture(t)

	err := f.vault.AcceptAdmin(f.ctx, carol)
	assert.ErrorIs(t, err, ErrNoPendingAdminTransfer)
	assert.Equal(t, KindState, KindOf(err))

	require.NoError(t, f.vault.ProposeAdmin(f.ctx, admin, carol))

	err = f.vault.AcceptAdmin(f.ctx, bob)
	assert.ErrorIs(t, err, ErrOnlyProposedAdminCanAccept)
	assert.Equal(t, KindAuthorization, KindOf(err))

	require.NoError(t, f.vault.AcceptAdmin(f.ctx, carol))
	l := f.state().Ledger
	assert.Equal(t, carol, l.Admin)
	assert.True(t, l.PendingAdmin.IsZero())
	assert.Equal(t, AdminAccepted, l.AdminPhase)

	// the old admin lost its rights
	err = f.vault.AdjustCooldown(f.ctx, admin, 2*time.Hour)
	assert.ErrorIs(t, err, ErrUnauthorizedRole)
	require.NoError(t, f.vault.AdjustCooldown(f.ctx, carol, 2*time.Hour))

	err = f.vault.AcceptAdmin(f.ctx, carol)
	assert.ErrorIs(t, err, ErrNoPendingAdminTransfer)

	require.NoError(t, f.vault.ProposeAdmin(f.ctx, carol, admin))
	assert.Equal(t, AdminProposed, f.state().Ledger.AdminPhase)

	assert.Contains(t, f.sink.types(), EventAdminTransferCompleted)
}

func TestAdjustCooldown(t *testing.T) {
	tests := []struct {
		name   string
		caller account.Address
		d      time.Duration
		err    error
	}{
		{name: "minimum", caller: admin, d: MinCooldownDuration},
		{name: "maximum", caller: admin, d: MaxCooldownDuration},
		{name: "below minimum", caller: admin, d: MinCooldownDuration - time.Second, err: ErrInvalidCooldownDuration},
		{name: "above maximum", caller: admin, d: MaxCooldownDuration + time.Second, err: ErrInvalidCooldownDuration},
		{name: "zero", caller: admin, d: 0, err: ErrInvalidCooldownDuration},
		{name: "no role", caller: alice, d: 2 * time.Hour, err: ErrUnauthorizedRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.vault.AdjustCooldown(f.ctx, tt.caller, tt.d)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, uint64(DefaultCooldownDuration/time.Second), f.state().Ledger.CooldownDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(tt.d/time.Second), f.state().Ledger.CooldownDuration)
		})
	}
}

func TestAdjustCooldownAppliesToLaterUnstakes(t *testing.T) {
	f := newFixture(t)
	f.stake(alice, alice, 1_000)
	_, err := f.vault.Unstake(f.ctx, alice, alice, 100)
	require.NoError(t, err)
	first, err := f.vault.Cooldown(f.ctx, alice, alice)
	require.NoError(t, err)

	require.NoError(t, f.vault.AdjustCooldown(f.ctx, admin, time.Hour))

	cd, err := f.vault.Cooldown(f.ctx, alice, alice)
	require.NoError(t, err)
	assert.Equal(t, first.End, cd.End)

	_, err = f.vault.Unstake(f.ctx, alice, bob, 100)
	require.NoError(t, err)
	cd, err = f.vault.Cooldown(f.ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Unix()+3600, cd.End)
}

func TestTestnetCooldownFloor(t *testing.T) {
	p := testParams()
	p.MinCooldown = TestnetMinCooldownDuration
	f := newBareFixture(t, p)
	require.NoError(t, f.vault.InitVault(f.ctx, admin, 0))

	require.NoError(t, f.vault.AdjustCooldown(f.ctx, admin, time.Second))
	assert.Equal(t, uint64(1), f.state().Ledger.CooldownDuration)
}

func TestCheckMinShares(t *testing.T) {
	tests := []struct {
		name   string
		supply uint64
		ok     bool
	}{
		{name: "empty", supply: 0, ok: true},
		{name: "dust", supply: 1, ok: false},
		{name: "just below", supply: 99, ok: false},
		{name: "at floor", supply: 100, ok: true},
		{name: "above", supply: 5_000, ok: true},
	}

	var l Ledger
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.CheckMinShares(tt.supply, 100)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInsufficientMinShares)
			}
		})
	}
}

func TestUnvestedAmountClockBehindDistribution(t *testing.T) {
	l := Ledger{VestingAmount: 100, LastDistributionTime: 1_000}

	got, err := l.UnvestedAmount(999, 28_800)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got)

	got, err = l.UnvestedAmount(1_000+14_400, 28_800)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), got)
}

func TestClockStepBackAfterDistribution(t *testing.T) {
	f := newFixture(t)
	f.stake(alice, alice, 5_000)
	require.NoError(t, f.vault.DistributeReward(f.ctx, distributor, 500))

	f.clock.Advance(-time.Second)

	st := f.state()
	assert.Equal(t, uint64(500), st.UnvestedAmount)
	assert.Equal(t, uint64(5_000), st.TotalAssets)

	res := f.stake(alice, alice, 1_000)
	assert.Equal(t, uint64(1_000), res.Shares)

	err := f.vault.DistributeReward(f.ctx, distributor, 100)
	assert.ErrorIs(t, err, ErrStillVesting)
}
