// Package vault implements the staking vault: share accounting under a linear
// vesting schedule, the stake / unstake / withdraw cooldown flow, reward
// distribution, and the privileged emergency, redistribution and admin paths.
//
// Every operation runs under one lock against a copy of the vault records and
// inside a token.Tx. A failed precondition, collaborator call or store write
// rolls the Tx back and discards the copy, so no operation commits partially.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"github.com/leafsii/leafsii-vault/internal/token"
	"go.uber.org/zap"
)

type RoleRegistry interface {
	HasRole(ctx context.Context, registryID, caller account.Address, role guardian.Role) (bool, error)
}

type DenyList interface {
	IsDenied(ctx context.Context, addr account.Address) (bool, error)
}

type AssetLedger interface {
	Begin(ctx context.Context) (token.Tx, error)
	BalanceOf(ctx context.Context, asset string, holder account.Address) (uint64, error)
	TotalSupply(ctx context.Context, asset string) (uint64, error)
	Decimals(ctx context.Context, asset string) (uint8, error)
	Allowance(ctx context.Context, asset string, owner, spender account.Address) (uint64, error)
}

// Snapshot is the persisted form of the vault records.
type Snapshot struct {
	Ledger      Ledger      `json:"ledger"`
	SubAccounts SubAccounts `json:"sub_accounts"`
	Cooldowns   []Cooldown  `json:"cooldowns"`
}

// AssetSnapshot names the asset ledger snapshot in Changes.Snapshots.
const AssetSnapshot = "assets"

// Changes carries the records an operation modified. Nil fields are unchanged.
// Snapshots holds collaborator state taken inside the operation's asset
// transaction, keyed by checkpoint name.
type Changes struct {
	Ledger      *Ledger
	SubAccounts SubAccounts
	Cooldowns   []Cooldown
	Snapshots   map[string][]byte
}

type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, changes Changes) error
}

// Observer is told the outcome of every operation. *metrics.Metrics implements it.
type Observer interface {
	RecordVaultOp(ctx context.Context, op, outcome, code string, duration time.Duration)
}

type Option func(*Vault)

func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

func WithEventSinks(sinks ...EventSink) Option {
	return func(v *Vault) { v.sinks = append(v.sinks, sinks...) }
}

func WithObserver(o Observer) Option {
	return func(v *Vault) { v.observer = o }
}

type Vault struct {
	mu sync.Mutex

	params    Params
	authority account.Address

	roles  RoleRegistry
	deny   DenyList
	assets AssetLedger
	store  Store

	sinks    []EventSink
	observer Observer
	now      func() time.Time
	logger   *zap.SugaredLogger

	ledger    Ledger
	subs      SubAccounts
	cooldowns map[account.Address]Cooldown
}

// New restores the vault records from store. An empty store yields an
// uninitialized vault.
func New(ctx context.Context, params Params, roles RoleRegistry, deny DenyList, assets AssetLedger, store Store, logger *zap.SugaredLogger, opts ...Option) (*Vault, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vault params: %w", err)
	}

	v := &Vault{
		params:    params,
		authority: params.Authority(),
		roles:     roles,
		deny:      deny,
		assets:    assets,
		store:     store,
		now:       time.Now,
		logger:    logger,
		subs:      make(SubAccounts),
		cooldowns: make(map[account.Address]Cooldown),
	}
	for _, opt := range opts {
		opt(v)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vault records: %w", err)
	}
	v.ledger = snap.Ledger
	if snap.SubAccounts != nil {
		v.subs = snap.SubAccounts
	}
	for _, c := range snap.Cooldowns {
		v.cooldowns[c.Address] = c
	}

	logger.Infow("Vault loaded",
		"authority", v.authority.String(),
		"initialized", v.ledger.Initialized,
		"sub_accounts", len(v.subs),
		"cooldowns", len(v.cooldowns),
	)
	return v, nil
}

func (v *Vault) Authority() account.Address {
	return v.authority
}

func (v *Vault) Params() Params {
	return v.params
}

func (v *Vault) unixNow() uint64 {
	return uint64(v.now().Unix())
}

// op is the working set of one operation.
type op struct {
	ctx context.Context
	v   *Vault
	tx  token.Tx
	now uint64

	ledger      Ledger
	ledgerDirty bool
	subs        SubAccounts
	subsDirty   bool
	cooldowns   map[account.Address]Cooldown
	events      []Event
}

func (o *op) touchLedger() *Ledger {
	o.ledgerDirty = true
	return &o.ledger
}

func (o *op) cooldown(addr account.Address) (Cooldown, bool) {
	if c, ok := o.cooldowns[addr]; ok {
		return c, true
	}
	c, ok := o.v.cooldowns[addr]
	return c, ok
}

func (o *op) putCooldown(c Cooldown) {
	o.cooldowns[c.Address] = c
}

func (o *op) emit(t EventType, payload any) {
	o.events = append(o.events, Event{
		ID:        uuid.New(),
		Type:      t,
		Timestamp: time.Unix(int64(o.now), 0).UTC(),
		Payload:   payload,
	})
}

func (o *op) requireInitialized() error {
	if !o.ledger.Initialized {
		return ErrConfigNotInitialized
	}
	return nil
}

func (o *op) balance(asset string, holder account.Address) (uint64, error) {
	b, err := o.v.assets.BalanceOf(o.ctx, asset, holder)
	if err != nil {
		return 0, fmt.Errorf("read %s balance: %w", asset, err)
	}
	return b, nil
}

func (o *op) shareSupply() (uint64, error) {
	s, err := o.v.assets.TotalSupply(o.ctx, o.ledger.ShareAsset)
	if err != nil {
		return 0, fmt.Errorf("read share supply: %w", err)
	}
	return s, nil
}

func (o *op) changes() Changes {
	var ch Changes
	if o.ledgerDirty {
		l := o.ledger
		ch.Ledger = &l
	}
	if o.subsDirty {
		ch.SubAccounts = o.subs
	}
	for _, c := range o.cooldowns {
		ch.Cooldowns = append(ch.Cooldowns, c)
	}
	return ch
}

// execute runs fn as one all-or-nothing operation.
func (v *Vault) execute(ctx context.Context, name string, caller account.Address, fn func(*op) error) error {
	start := time.Now()

	v.mu.Lock()
	events, err := v.run(ctx, fn)
	if err == nil {
		v.publish(ctx, events)
	}
	v.mu.Unlock()

	outcome, code := "committed", ""
	if err != nil {
		outcome, code = "rejected", CodeOf(err)
		if KindOf(err) == KindInternal {
			outcome = "failed"
			v.logger.Errorw("Vault operation failed", "op", name, "caller", caller.String(), "error", err)
		} else {
			v.logger.Debugw("Vault operation rejected", "op", name, "caller", caller.String(), "code", code, "error", err)
		}
	} else {
		v.logger.Infow("Vault operation committed", "op", name, "caller", caller.String(), "events", len(events))
	}
	if v.observer != nil {
		v.observer.RecordVaultOp(ctx, name, outcome, code, time.Since(start))
	}
	return err
}

func (v *Vault) run(ctx context.Context, fn func(*op) error) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := v.assets.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin asset transaction: %w", err)
	}

	o := &op{
		ctx:       ctx,
		v:         v,
		tx:        tx,
		now:       v.unixNow(),
		ledger:    v.ledger,
		subs:      v.subs.clone(),
		cooldowns: make(map[account.Address]Cooldown),
	}

	if err := fn(o); err != nil {
		v.rollback(tx)
		return nil, err
	}
	ch := o.changes()
	assets, err := tx.Export()
	if err != nil {
		v.rollback(tx)
		return nil, fmt.Errorf("snapshot assets: %w", err)
	}
	ch.Snapshots = map[string][]byte{AssetSnapshot: assets}

	if err := v.store.Save(ctx, ch); err != nil {
		v.rollback(tx)
		return nil, fmt.Errorf("persist vault records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		// the store already holds the new records; keep memory in line with it
		v.logger.Errorw("Asset transaction commit failed after store write", "error", err)
	}

	v.ledger = o.ledger
	v.subs = o.subs
	for addr, c := range o.cooldowns {
		v.cooldowns[addr] = c
	}
	return o.events, nil
}

// Checkpoint persists the current asset ledger, together with whatever else
// the store stages, as an empty operation. Callers use it after changing
// collaborator state outside a vault operation.
func (v *Vault) Checkpoint(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.run(ctx, func(*op) error { return nil })
	return err
}

func (v *Vault) rollback(tx token.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, token.ErrTxDone) {
		v.logger.Errorw("Asset transaction rollback failed", "error", err)
	}
}

func (v *Vault) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	for _, sink := range v.sinks {
		if err := sink.HandleEvents(ctx, events); err != nil {
			v.logger.Warnw("Event sink failed", "sink", fmt.Sprintf("%T", sink), "events", len(events), "error", err)
		}
	}
}
