package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/denylist"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"github.com/leafsii/leafsii-vault/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testBase  = "USDU"
	testShare = "SUSDU"
)

var (
	registryID  = account.MustParseAddress("0x100")
	baseIssuer  = account.MustParseAddress("0xba5e")
	admin       = account.MustParseAddress("0xad")
	roleAdmin   = account.MustParseAddress("0x90a7")
	alice       = account.MustParseAddress("0xa11ce")
	bob         = account.MustParseAddress("0xb0b")
	carol       = account.MustParseAddress("0xca201")
	dave        = account.MustParseAddress("0xda7e")
	distributor = account.MustParseAddress("0xd157")
	stranger    = account.MustParseAddress("0x5742")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Unix() uint64 {
	return uint64(c.Now().Unix())
}

type memStore struct {
	mu       sync.Mutex
	snap     Snapshot
	assets   []byte
	saves    int
	failNext bool
}

var errStoreDown = errors.New("store unavailable")

func (s *memStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Ledger: s.snap.Ledger, SubAccounts: s.snap.SubAccounts.clone()}
	out.Cooldowns = append(out.Cooldowns, s.snap.Cooldowns...)
	return out, nil
}

func (s *memStore) Save(ctx context.Context, ch Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errStoreDown
	}
	s.saves++
	s.assets = ch.Snapshots[AssetSnapshot]
	if ch.Ledger != nil {
		s.snap.Ledger = *ch.Ledger
	}
	if ch.SubAccounts != nil {
		s.snap.SubAccounts = ch.SubAccounts.clone()
	}
	for _, c := range ch.Cooldowns {
		replaced := false
		for i := range s.snap.Cooldowns {
			if s.snap.Cooldowns[i].Address == c.Address {
				s.snap.Cooldowns[i] = c
				replaced = true
			}
		}
		if !replaced {
			s.snap.Cooldowns = append(s.snap.Cooldowns, c)
		}
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) HandleEvents(ctx context.Context, events []Event) error {
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *recordingObserver) RecordVaultOp(ctx context.Context, op, outcome, code string, d time.Duration) {
	o.mu.Lock()
	o.outcomes[outcome]++
	o.mu.Unlock()
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	params   Params
	clock    *fakeClock
	roles    *guardian.Registry
	deny     *denylist.Registry
	assets   *token.Ledger
	store    *memStore
	sink     *recordingSink
	observer *recordingObserver
	vault    *Vault
}

func testParams() Params {
	p := DefaultParams()
	p.ProgramID = account.ProgramAddress("vault-under-test")
	p.RoleRegistryID = registryID
	p.BaseAsset = testBase
	p.ShareAsset = testShare
	p.MinShares = 100
	p.MinInitialDeposit = 1_000
	return p
}

// newFixture returns an initialized vault with all sub-accounts, alice
// holding minter and redeemer roles and 10_000 base, distributor holding
// the distributor role and 10_000 base.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newBareFixture(t, testParams())

	require.NoError(t, f.vault.InitVault(f.ctx, admin, 0))
	for _, kind := range SubAccountKinds() {
		_, err := f.vault.InitSubAccount(f.ctx, admin, kind)
		require.NoError(t, err)
	}
	return f
}

func newBareFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	f := &fixture{
		t:        t,
		ctx:      ctx,
		params:   params,
		clock:    &fakeClock{now: time.Unix(1_700_000_000, 0)},
		roles:    guardian.NewRegistry(registryID, roleAdmin, logger),
		assets:   token.NewLedger(logger),
		store:    &memStore{},
		sink:     &recordingSink{},
		observer: &recordingObserver{outcomes: make(map[string]int)},
	}
	f.deny = denylist.NewRegistry(roleAdmin, f.roles, registryID, logger).WithAssets(testBase, testShare)
	f.assets.SetTransferHook(f.deny)

	require.NoError(t, f.assets.CreateAsset(testBase, 3, baseIssuer))
	require.NoError(t, f.assets.CreateAsset(testShare, 3, params.Authority()))

	for _, grant := range []struct {
		owner account.Address
		role  guardian.Role
	}{
		{alice, guardian.RoleShareMinter},
		{alice, guardian.RoleShareRedeemer},
		{bob, guardian.RoleShareRedeemer},
		{distributor, guardian.RoleRewardDistributor},
	} {
		require.NoError(t, f.roles.Grant(ctx, roleAdmin, grant.owner, grant.role))
	}
	require.NoError(t, f.assets.Mint(ctx, testBase, baseIssuer, alice, 10_000))
	require.NoError(t, f.assets.Mint(ctx, testBase, baseIssuer, distributor, 10_000))

	f.vault = f.open()
	return f
}

func (f *fixture) open() *Vault {
	f.t.Helper()
	v, err := New(f.ctx, f.params, f.roles, f.deny, f.assets, f.store, zap.NewNop().Sugar(),
		WithClock(f.clock.Now),
		WithEventSinks(f.sink),
		WithObserver(f.observer),
	)
	require.NoError(f.t, err)
	return v
}

func (f *fixture) balance(asset string, holder account.Address) uint64 {
	f.t.Helper()
	b, err := f.assets.BalanceOf(f.ctx, asset, holder)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) shareSupply() uint64 {
	f.t.Helper()
	s, err := f.assets.TotalSupply(f.ctx, testShare)
	require.NoError(f.t, err)
	return s
}

func (f *fixture) sub(kind SubAccountKind) account.Address {
	f.t.Helper()
	addr, err := DeriveSubAccount(kind, f.params.Authority())
	require.NoError(f.t, err)
	return addr
}

func (f *fixture) state() StateView {
	f.t.Helper()
	s, err := f.vault.State(f.ctx)
	require.NoError(f.t, err)
	return s
}

func (f *fixture) stake(caller, receiver account.Address, amount uint64) StakeResult {
	f.t.Helper()
	res, err := f.vault.Stake(f.ctx, caller, receiver, amount)
	require.NoError(f.t, err)
	return res
}

func TestNewRejectsInvalidParams(t *testing.T) {
	p := testParams()
	p.ShareAsset = p.BaseAsset
	_, err := New(context.Background(), p, nil, nil, nil, &memStore{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestOperationsRequireInitializedVault(t *testing.T) {
	f := newBareFixture(t, testParams())

	_, err := f.vault.Stake(f.ctx, alice, alice, 1_000)
	assert.ErrorIs(t, err, ErrConfigNotInitialized)
	assert.Equal(t, KindConfig, KindOf(err))

	_, err = f.vault.InitSubAccount(f.ctx, admin, StakePool)
	assert.ErrorIs(t, err, ErrConfigNotInitialized)

	_, err = f.vault.PreviewDeposit(f.ctx, 10)
	assert.ErrorIs(t, err, ErrConfigNotInitialized)

	s := f.state()
	assert.False(t, s.Ledger.Initialized)
}

func TestInitVault(t *testing.T) {
	f := newBareFixture(t, testParams())

	require.NoError(t, f.vault.InitVault(f.ctx, admin, 0))
	s := f.state()
	assert.True(t, s.Ledger.Initialized)
	assert.Equal(t, admin, s.Ledger.Admin)
	assert.Equal(t, uint64(DefaultCooldownDuration/time.Second), s.Ledger.CooldownDuration)
	assert.Equal(t, registryID, s.Ledger.RoleRegistry)
	assert.Equal(t, f.clock.Unix(), s.Ledger.InitializedAt)

	err := f.vault.InitVault(f.ctx, admin, 0)
	assert.ErrorIs(t, err, ErrConfigAlreadyInitialized)
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestInitVaultValidation(t *testing.T) {
	tests := []struct {
		name     string
		boot     account.Address
		caller   account.Address
		cooldown time.Duration
		err      error
	}{
		{name: "cooldown below minimum", caller: admin, cooldown: time.Minute, err: ErrInvalidCooldownDuration},
		{name: "cooldown above maximum", caller: admin, cooldown: 31 * 24 * time.Hour, err: ErrInvalidCooldownDuration},
		{name: "fractional seconds", caller: admin, cooldown: 2*time.Hour + time.Millisecond, err: ErrInvalidCooldownDuration},
		{name: "not bootstrap admin", boot: admin, caller: alice, err: ErrUnauthorized},
		{name: "bootstrap admin", boot: admin, caller: admin},
		{name: "explicit cooldown", caller: admin, cooldown: 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			p.BootstrapAdmin = tt.boot
			f := newBareFixture(t, p)

			err := f.vault.InitVault(f.ctx, tt.caller, tt.cooldown)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.False(t, f.state().Ledger.Initialized)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestInitSubAccount(t *testing.T) {
	f := newBareFixture(t, testParams())
	require.NoError(t, f.vault.InitVault(f.ctx, admin, 0))

	_, err := f.vault.InitSubAccount(f.ctx, alice, StakePool)
	assert.ErrorIs(t, err, ErrUnauthorized)

	sub, err := f.vault.InitSubAccount(f.ctx, admin, ShareHolding)
	require.NoError(t, err)
	assert.Equal(t, testShare, sub.Asset)
	assert.Equal(t, ShareHoldingSeed, sub.Seed)
	assert.Equal(t, f.sub(ShareHolding), sub.Address)

	_, err = f.vault.InitSubAccount(f.ctx, admin, ShareHolding)
	assert.ErrorIs(t, err, ErrSubAccountAlreadyInitialized)

	_, err = f.vault.InitSubAccount(f.ctx, admin, SubAccountKind("treasury"))
	assert.ErrorIs(t, err, ErrInvalidSubAccount)

	// stake needs the stake pool
	_, err = f.vault.Stake(f.ctx, alice, alice, 1_000)
	assert.ErrorIs(t, err, ErrSubAccountNotInitialized)
}

func TestSubAccountAddressesAreDistinct(t *testing.T) {
	authority := testParams().Authority()
	seen := make(map[account.Address]SubAccountKind)
	for _, kind := range SubAccountKinds() {
		addr, err := DeriveSubAccount(kind, authority)
		require.NoError(t, err)
		_, dup := seen[addr]
		assert.False(t, dup, "duplicate address for %s", kind)
		seen[addr] = kind
		assert.NotEqual(t, authority, addr)
	}

	_, err := ParseSubAccountKind("silo")
	require.NoError(t, err)
	_, err = ParseSubAccountKind("vault")
	assert.ErrorIs(t, err, ErrInvalidSubAccount)
}

func TestStoreFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	before := f.state()

	f.store.failNext = true
	_, err := f.vault.Stake(f.ctx, alice, alice, 1_000)
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, KindInternal, KindOf(err))

	assert.Equal(t, before.Ledger, f.state().Ledger)
	assert.Equal(t, uint64(10_000), f.balance(testBase, alice))
	assert.Equal(t, uint64(0), f.balance(testBase, f.sub(StakePool)))
	assert.Equal(t, uint64(0), f.shareSupply())
	assert.NotContains(t, f.sink.types(), EventSharesMinted)
	assert.Equal(t, 1, f.observer.outcomes["failed"])

	// the vault keeps working afterwards
	res := f.stake(alice, alice, 1_000)
	assert.Equal(t, uint64(1_000), res.Shares)
}

func TestSaveCarriesAssetSnapshot(t *testing.T) {
	f := newFixture(t)
	f.stake(alice, alice, 1_500)

	// the snapshot is taken inside the stake's asset transaction
	restored := token.NewLedger(zap.NewNop().Sugar())
	require.NoError(t, restored.Import(f.store.assets))
	shares, err := restored.BalanceOf(f.ctx, testShare, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), shares)
	pool, err := restored.BalanceOf(f.ctx, testBase, f.sub(StakePool))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), pool)

	// a rejected operation writes nothing
	saves, snap := f.store.saves, f.store.assets
	_, err = f.vault.Stake(f.ctx, alice, alice, 0)
	require.Error(t, err)
	assert.Equal(t, saves, f.store.saves)
	assert.Equal(t, snap, f.store.assets)
}

func TestCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.stake(alice, alice, 1_000)
	require.NoError(t, f.assets.Transfer(f.ctx, testBase, alice, bob, 300))

	saves := f.store.saves
	before := f.state()
	require.NoError(t, f.vault.Checkpoint(f.ctx))
	assert.Equal(t, saves+1, f.store.saves)
	assert.Equal(t, before, f.state())

	restored := token.NewLedger(zap.NewNop().Sugar())
	require.NoError(t, restored.Import(f.store.assets))
	got, err := restored.BalanceOf(f.ctx, testBase, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), got)

	f.store.failNext = true
	assert.ErrorIs(t, f.vault.Checkpoint(f.ctx), errStoreDown)
	// the ledger is usable again after the failed checkpoint
	f.stake(alice, alice, 1_000)
}

func TestPostCheckFailureRollsBackCollaborators(t *testing.T) {
	f := newFixture(t)
	f.stake(alice, alice, 1_000)

	// leaves 50 shares, below the floor of 100
	_, err := f.vault.Unstake(f.ctx, alice, alice, 950)
	require.ErrorIs(t, err, ErrInsufficientMinShares)
	assert.Equal(t, KindState, KindOf(err))

	assert.Equal(t, uint64(1_000), f.shareSupply())
	assert.Equal(t, uint64(1_000), f.balance(testShare, alice))
	assert.Equal(t, uint64(1_000), f.balance(testBase, f.sub(StakePool)))
	assert.Equal(t, uint64(0), f.balance(testBase, f.sub(Silo)))
	assert.Equal(t, uint64(1_000), f.state().Ledger.TotalStakedSupply)

	_, err = f.vault.Cooldown(f.ctx, alice, alice)
	assert.ErrorIs(t, err, ErrCooldownNotInitialized)

	// unstaking everything is allowed
	_, err = f.vault.Unstake(f.ctx, alice, alice, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.shareSupply())
}

func TestRestoreFromStore(t *testing.T) {
	f := newFixture(t)
	f.stake(alice, alice, 2_000)
	_, err := f.vault.Unstake(f.ctx, alice, bob, 500)
	require.NoError(t, err)

	restored := f.open()
	got, err := restored.State(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.state(), got)

	cd, err := restored.Cooldown(f.ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cd.Amount)
}

func TestEventsPublishedInOrder(t *testing.T) {
	f := newFixture(t)
	f.stake(alice, alice, 1_000)
	_, err := f.vault.Unstake(f.ctx, alice, alice, 100)
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventVaultInitialized,
		EventSubAccountInitialized,
		EventSubAccountInitialized,
		EventSubAccountInitialized,
		EventSubAccountInitialized,
		EventSharesMinted,
		EventCooldownStarted,
	}, f.sink.types())

	last := f.sink.events[len(f.sink.events)-1]
	payload, ok := last.Payload.(CooldownStarted)
	require.True(t, ok)
	assert.Equal(t, uint64(100), payload.Assets)
	assert.Equal(t, time.Unix(int64(f.clock.Unix()), 0).UTC(), last.Timestamp)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{name: "sentinel", err: ErrCooldownActive, kind: KindState, code: "CooldownActive"},
		{name: "detailed copy", err: ErrDenied.withf("x"), kind: KindCompliance, code: "Denied"},
		{name: "wrapped", err: errors.Join(errors.New("ctx"), ErrUnauthorizedRole), kind: KindAuthorization, code: "UnauthorizedRole"},
		{name: "arithmetic", err: arithmetic(errors.New("boom")), kind: KindArithmetic, code: "MathOverflow"},
		{name: "collaborator", err: errStoreDown, kind: KindInternal, code: "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}

	assert.True(t, errors.Is(ErrDenied.withf("detail"), ErrDenied))
	assert.False(t, errors.Is(ErrDenied, ErrNotDenied))
}
