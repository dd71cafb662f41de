package guardian

import (
	"context"
	"testing"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	registryID = account.MustParseAddress("0x100")
	admin      = account.MustParseAddress("0xa1")
	alice      = account.MustParseAddress("0xa11ce")
	bob        = account.MustParseAddress("0xb0b")
)

func newTestRegistry() *Registry {
	return NewRegistry(registryID, admin, zap.NewNop().Sugar())
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusUnset, StatusActive, true},
		{StatusUnset, StatusRevoked, false},
		{StatusActive, StatusRevoked, true},
		{StatusActive, StatusActive, false},
		{StatusActive, StatusUnset, false},
		{StatusRevoked, StatusActive, true},
		{StatusRevoked, StatusUnset, false},
		{StatusRevoked, StatusRevoked, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestHasRole(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	require.NoError(t, reg.Grant(ctx, admin, alice, RoleShareMinter))

	tests := []struct {
		name     string
		registry account.Address
		caller   account.Address
		role     Role
		expected bool
	}{
		{name: "granted role", registry: registryID, caller: alice, role: RoleShareMinter, expected: true},
		{name: "other role", registry: registryID, caller: alice, role: RoleVaultAdmin, expected: false},
		{name: "other holder", registry: registryID, caller: bob, role: RoleShareMinter, expected: false},
		{name: "admin holds every role", registry: registryID, caller: admin, role: RoleGrandMaster, expected: true},
		{name: "foreign registry", registry: account.MustParseAddress("0x999"), caller: alice, role: RoleShareMinter, expected: false},
		{name: "foreign registry admin", registry: account.MustParseAddress("0x999"), caller: admin, role: RoleShareMinter, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := reg.HasRole(ctx, tt.registry, tt.caller, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestGrantRevokeLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	_, ok := reg.Record(alice, RoleShareRedeemer)
	assert.False(t, ok)

	require.NoError(t, reg.Grant(ctx, admin, alice, RoleShareRedeemer))
	assert.ErrorIs(t, reg.Grant(ctx, admin, alice, RoleShareRedeemer), ErrRoleAlreadyActive)

	require.NoError(t, reg.Revoke(ctx, admin, alice, RoleShareRedeemer))
	assert.ErrorIs(t, reg.Revoke(ctx, admin, alice, RoleShareRedeemer), ErrRoleNotActive)

	has, err := reg.HasRole(ctx, registryID, alice, RoleShareRedeemer)
	require.NoError(t, err)
	assert.False(t, has)

	rec, ok := reg.Record(alice, RoleShareRedeemer)
	require.True(t, ok)
	assert.Equal(t, StatusRevoked, rec.Status)

	require.NoError(t, reg.Grant(ctx, admin, alice, RoleShareRedeemer))
	has, err = reg.HasRole(ctx, registryID, alice, RoleShareRedeemer)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGrantValidation(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	assert.ErrorIs(t, reg.Grant(ctx, alice, bob, RoleShareMinter), ErrUnauthorized)
	assert.ErrorIs(t, reg.Grant(ctx, admin, bob, Role("root")), ErrInvalidRole)
	assert.ErrorIs(t, reg.Grant(ctx, admin, account.Zero, RoleShareMinter), ErrInvalidOwner)
	assert.ErrorIs(t, reg.Revoke(ctx, alice, bob, RoleShareMinter), ErrUnauthorized)
	assert.ErrorIs(t, reg.Revoke(ctx, admin, bob, RoleShareMinter), ErrRoleNotActive)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("vault_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleVaultAdmin, r)

	r, err = ParseRole("collateral_withdrawer")
	require.NoError(t, err)
	assert.Equal(t, RoleCollateralWithdrawer, r)

	_, err = ParseRole("superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Len(t, Roles(), 7)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	require.NoError(t, reg.Grant(ctx, admin, alice, RoleShareMinter))
	require.NoError(t, reg.Grant(ctx, admin, bob, RoleRewardDistributor))
	require.NoError(t, reg.Revoke(ctx, admin, bob, RoleRewardDistributor))

	data, err := reg.Export()
	require.NoError(t, err)

	restored := newTestRegistry()
	require.NoError(t, restored.Import(data))
	assert.Equal(t, reg.Records(), restored.Records())

	has, err := restored.HasRole(ctx, registryID, alice, RoleShareMinter)
	require.NoError(t, err)
	assert.True(t, has)

	foreign := NewRegistry(account.MustParseAddress("0x200"), admin, zap.NewNop().Sugar())
	assert.Error(t, foreign.Import(data))
}
