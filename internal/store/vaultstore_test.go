package store

import (
	"context"
	"testing"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/denylist"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"github.com/leafsii/leafsii-vault/internal/token"
	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/leafsii/leafsii-vault/pkg/kv"
	memkv "github.com/leafsii/leafsii-vault/pkg/kv/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	registryID = account.MustParseAddress("0x100")
	issuer     = account.MustParseAddress("0xba5e")
	roleAdmin  = account.MustParseAddress("0x90a7")
	vaultAdmin = account.MustParseAddress("0xad")
	staker     = account.MustParseAddress("0xa11ce")
)

type harness struct {
	ctx    context.Context
	params vault.Params
	now    time.Time
	roles  *guardian.Registry
	deny   *denylist.Registry
	assets *token.Ledger
	kv     kv.Store
	// checkpoints, when set, are staged into every vault write
	checkpoints *Checkpointer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop().Sugar()

	params := vault.DefaultParams()
	params.ProgramID = account.ProgramAddress("store-test")
	params.RoleRegistryID = registryID
	params.MinShares = 100
	params.MinInitialDeposit = 1_000

	h := &harness{
		ctx:    context.Background(),
		params: params,
		now:    time.Unix(1_700_000_000, 0),
		roles:  guardian.NewRegistry(registryID, roleAdmin, logger),
		assets: token.NewLedger(logger),
		kv:     memkv.NewStore(),
	}
	t.Cleanup(func() { h.kv.Close() })

	h.deny = denylist.NewRegistry(roleAdmin, h.roles, registryID, logger).WithAssets(params.BaseAsset, params.ShareAsset)
	h.assets.SetTransferHook(h.deny)
	require.NoError(t, h.assets.CreateAsset(params.BaseAsset, 6, issuer))
	require.NoError(t, h.assets.CreateAsset(params.ShareAsset, 6, params.Authority()))
	require.NoError(t, h.roles.Grant(h.ctx, roleAdmin, staker, guardian.RoleShareMinter))
	require.NoError(t, h.roles.Grant(h.ctx, roleAdmin, staker, guardian.RoleShareRedeemer))
	require.NoError(t, h.assets.Mint(h.ctx, params.BaseAsset, issuer, staker, 50_000))
	return h
}

func (h *harness) open(t *testing.T, sinks ...vault.EventSink) *vault.Vault {
	t.Helper()
	logger := zap.NewNop().Sugar()
	v, err := vault.New(h.ctx, h.params, h.roles, h.deny, h.assets,
		NewVaultStore(h.kv, h.params.Authority(), logger).WithCheckpoints(h.checkpoints), logger,
		vault.WithClock(func() time.Time { return h.now }),
		vault.WithEventSinks(sinks...),
	)
	require.NoError(t, err)
	return v
}

func (h *harness) initialize(t *testing.T, v *vault.Vault) {
	t.Helper()
	require.NoError(t, v.InitVault(h.ctx, vaultAdmin, 0))
	for _, kind := range vault.SubAccountKinds() {
		_, err := v.InitSubAccount(h.ctx, vaultAdmin, kind)
		require.NoError(t, err)
	}
}

func TestVaultStoreLoadEmpty(t *testing.T) {
	h := newHarness(t)
	s := NewVaultStore(h.kv, h.params.Authority(), zap.NewNop().Sugar())

	snap, err := s.Load(h.ctx)
	require.NoError(t, err)
	assert.False(t, snap.Ledger.Initialized)
	assert.Empty(t, snap.SubAccounts)
	assert.Empty(t, snap.Cooldowns)
}

func TestVaultStoreSaveNothing(t *testing.T) {
	h := newHarness(t)
	s := NewVaultStore(h.kv, h.params.Authority(), zap.NewNop().Sugar())

	require.NoError(t, s.Save(h.ctx, vault.Changes{}))

	n, err := h.kv.Exists(h.ctx, s.ledgerKey(), s.subAccountsKey(), s.cooldownsKey())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVaultStoreLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness, s *VaultStore)
	}{
		{
			name: "corrupt ledger",
			setup: func(t *testing.T, h *harness, s *VaultStore) {
				require.NoError(t, h.kv.Set(h.ctx, s.ledgerKey(), []byte("{"), 0))
			},
		},
		{
			name: "corrupt sub-account",
			setup: func(t *testing.T, h *harness, s *VaultStore) {
				require.NoError(t, h.kv.Set(h.ctx, s.ledgerKey(), []byte(`{"initialized":true}`), 0))
				require.NoError(t, h.kv.HSet(h.ctx, s.subAccountsKey(), "stake_pool", []byte("nope")))
			},
		},
		{
			name: "corrupt cooldown",
			setup: func(t *testing.T, h *harness, s *VaultStore) {
				require.NoError(t, h.kv.Set(h.ctx, s.ledgerKey(), []byte(`{"initialized":true}`), 0))
				require.NoError(t, h.kv.HSet(h.ctx, s.cooldownsKey(), "0x1", []byte("[]")))
			},
		},
		{
			name: "ledger key holds a hash",
			setup: func(t *testing.T, h *harness, s *VaultStore) {
				require.NoError(t, h.kv.HSet(h.ctx, s.ledgerKey(), "f", []byte("v")))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			s := NewVaultStore(h.kv, h.params.Authority(), zap.NewNop().Sugar())
			tt.setup(t, h, s)

			_, err := s.Load(h.ctx)
			assert.Error(t, err)
		})
	}
}

func TestVaultStoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	v := h.open(t)
	h.initialize(t, v)

	_, err := v.Stake(h.ctx, staker, staker, 10_000)
	require.NoError(t, err)
	_, err = v.Unstake(h.ctx, staker, staker, 2_500)
	require.NoError(t, err)

	before, err := v.State(h.ctx)
	require.NoError(t, err)
	cdBefore, err := v.Cooldown(h.ctx, staker, staker)
	require.NoError(t, err)

	reopened := h.open(t)
	after, err := reopened.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	cdAfter, err := reopened.Cooldown(h.ctx, staker, staker)
	require.NoError(t, err)
	assert.Equal(t, cdBefore, cdAfter)

	// the reopened vault keeps operating on the restored records
	h.now = h.now.Add(vault.DefaultCooldownDuration)
	paid, err := reopened.Withdraw(h.ctx, staker, staker)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500), paid)
	bal, err := h.assets.BalanceOf(h.ctx, h.params.BaseAsset, staker)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000-10_000+2_500), bal)
}

func TestVaultStoreKeysArePerAuthority(t *testing.T) {
	h := newHarness(t)
	logger := zap.NewNop().Sugar()
	a := NewVaultStore(h.kv, account.MustParseAddress("0xa"), logger)
	b := NewVaultStore(h.kv, account.MustParseAddress("0xb"), logger)

	require.NoError(t, a.Save(h.ctx, vault.Changes{Ledger: &vault.Ledger{Initialized: true, BaseAsset: "A"}}))

	snapA, err := a.Load(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", snapA.Ledger.BaseAsset)

	snapB, err := b.Load(h.ctx)
	require.NoError(t, err)
	assert.False(t, snapB.Ledger.Initialized)
}
