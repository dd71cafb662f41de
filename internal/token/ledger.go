// Package token is the in-process asset ledger backing the base asset and the
// vault share token. Mutations made by the vault go through a journaled Tx so
// a failed operation leaves no partial balance changes behind.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
	"go.uber.org/zap"
)

var (
	ErrUnknownAsset          = errors.New("unknown asset")
	ErrAssetExists           = errors.New("asset already registered")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidAuthority      = errors.New("authority does not control asset")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrTxDone                = errors.New("transaction already committed or rolled back")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// TransferHook vets holder-initiated transfers. *denylist.Registry implements it.
type TransferHook interface {
	CheckTransfer(ctx context.Context, asset string, from, to account.Address) error
}

type Asset struct {
	ID        string          `json:"id"`
	Decimals  uint8           `json:"decimals"`
	Authority account.Address `json:"authority"`
	// Minters may mint and burn alongside the authority.
	Minters []account.Address `json:"minters,omitempty"`
	Supply  uint64            `json:"supply"`
}

func (a *Asset) canMint(addr account.Address) bool {
	if a.Authority == addr {
		return true
	}
	for _, m := range a.Minters {
		if m == addr {
			return true
		}
	}
	return false
}

type allowanceKey struct {
	asset   string
	owner   account.Address
	spender account.Address
}

type Ledger struct {
	// txMu serializes transactions; mu guards the maps for individual reads and writes.
	txMu sync.Mutex
	mu   sync.RWMutex

	assets   map[string]*Asset
	balances map[string]map[account.Address]uint64
	// allowances hold what owner lets spender move on its behalf.
	allowances map[allowanceKey]uint64
	hook       TransferHook

	logger *zap.SugaredLogger
}

func NewLedger(logger *zap.SugaredLogger) *Ledger {
	return &Ledger{
		assets:     make(map[string]*Asset),
		balances:   make(map[string]map[account.Address]uint64),
		allowances: make(map[allowanceKey]uint64),
		logger:     logger,
	}
}

func (l *Ledger) SetTransferHook(hook TransferHook) {
	l.mu.Lock()
	l.hook = hook
	l.mu.Unlock()
}

// CreateAsset registers a new asset. authority is the only address allowed to
// mint, burn or redistribute it.
func (l *Ledger) CreateAsset(id string, decimals uint8, authority account.Address) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownAsset)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[id]; ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, id)
	}
	l.assets[id] = &Asset{ID: id, Decimals: decimals, Authority: authority}
	l.balances[id] = make(map[account.Address]uint64)

	l.logger.Infow("Asset registered", "asset", id, "decimals", decimals, "authority", authority.ShortString())
	return nil
}

// AddMinter lets minter mint and burn asset. Only the authority may add one.
func (l *Ledger) AddMinter(id string, authority, minter account.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	if a.Authority != authority {
		return fmt.Errorf("%w: %s is not the authority of %s", ErrInvalidAuthority, authority.ShortString(), id)
	}
	if a.canMint(minter) {
		return nil
	}
	a.Minters = append(a.Minters, minter)

	l.logger.Infow("Minter added", "asset", id, "minter", minter.ShortString())
	return nil
}

func (l *Ledger) Asset(id string) (Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return *a, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, asset string, holder account.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal, ok := l.balances[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return bal[holder], nil
}

func (l *Ledger) TotalSupply(ctx context.Context, asset string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return a.Supply, nil
}

// Allowance is how much of asset spender may still move out of owner.
func (l *Ledger) Allowance(ctx context.Context, asset string, owner, spender account.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.assets[asset]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return l.allowances[allowanceKey{asset: asset, owner: owner, spender: spender}], nil
}

// Approve sets the allowance of spender over owner's asset in its own
// transaction. A zero amount revokes it.
func (l *Ledger) Approve(ctx context.Context, asset string, owner, spender account.Address, amount uint64) error {
	return l.run(ctx, func(tx Tx) error {
		return tx.Approve(ctx, asset, owner, spender, amount)
	})
}

func (l *Ledger) Decimals(ctx context.Context, asset string) (uint8, error) {
	a, err := l.Asset(asset)
	if err != nil {
		return 0, err
	}
	return a.Decimals, nil
}

// Transfer moves amount between holders in its own transaction.
func (l *Ledger) Transfer(ctx context.Context, asset string, from, to account.Address, amount uint64) error {
	return l.run(ctx, func(tx Tx) error {
		return tx.Transfer(ctx, asset, from, to, amount)
	})
}

// Mint issues amount to holder in its own transaction.
func (l *Ledger) Mint(ctx context.Context, asset string, authority, to account.Address, amount uint64) error {
	return l.run(ctx, func(tx Tx) error {
		return tx.Mint(ctx, asset, authority, to, amount)
	})
}

func (l *Ledger) run(ctx context.Context, fn func(Tx) error) error {
	tx, err := l.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			l.logger.Errorw("Ledger rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Holders returns a copy of the non-zero balances of asset.
func (l *Ledger) Holders(asset string) map[account.Address]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[account.Address]uint64, len(l.balances[asset]))
	for addr, amt := range l.balances[asset] {
		if amt > 0 {
			out[addr] = amt
		}
	}
	return out
}

func (l *Ledger) credit(asset string, to account.Address, amount uint64) error {
	bal := l.balances[asset]
	next, err := calc.CheckedAdd(bal[to], amount)
	if err != nil {
		return err
	}
	bal[to] = next
	return nil
}

func (l *Ledger) debit(asset string, from account.Address, amount uint64) error {
	bal := l.balances[asset]
	if bal[from] < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientBalance, from.ShortString(), bal[from], asset, amount)
	}
	bal[from] -= amount
	if bal[from] == 0 {
		delete(bal, from)
	}
	return nil
}

type holding struct {
	Holder account.Address `json:"holder"`
	Amount uint64          `json:"amount"`
}

type assetSnapshot struct {
	Asset    Asset     `json:"asset"`
	Holdings []holding `json:"holdings"`
}

type allowance struct {
	Asset   string          `json:"asset"`
	Owner   account.Address `json:"owner"`
	Spender account.Address `json:"spender"`
	Amount  uint64          `json:"amount"`
}

type ledgerSnapshot struct {
	Assets     []assetSnapshot `json:"assets"`
	Allowances []allowance     `json:"allowances,omitempty"`
}

// Export snapshots every asset. It waits for an open transaction to finish so
// the snapshot never holds uncommitted balances.
func (l *Ledger) Export() ([]byte, error) {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	return l.exportLocked()
}

// exportLocked requires txMu to be held, either directly or by an open Tx.
func (l *Ledger) exportLocked() ([]byte, error) {
	l.mu.RLock()
	ids := make([]string, 0, len(l.assets))
	for id := range l.assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var snap ledgerSnapshot
	snap.Assets = make([]assetSnapshot, 0, len(ids))
	for _, id := range ids {
		as := assetSnapshot{Asset: *l.assets[id]}
		as.Asset.Minters = append([]account.Address(nil), l.assets[id].Minters...)
		for holder, amt := range l.balances[id] {
			as.Holdings = append(as.Holdings, holding{Holder: holder, Amount: amt})
		}
		sort.Slice(as.Holdings, func(i, j int) bool {
			return as.Holdings[i].Holder.String() < as.Holdings[j].Holder.String()
		})
		snap.Assets = append(snap.Assets, as)
	}
	for k, amt := range l.allowances {
		snap.Allowances = append(snap.Allowances, allowance{Asset: k.asset, Owner: k.owner, Spender: k.spender, Amount: amt})
	}
	l.mu.RUnlock()

	sort.Slice(snap.Allowances, func(i, j int) bool {
		a, b := snap.Allowances[i], snap.Allowances[j]
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		if a.Owner != b.Owner {
			return a.Owner.String() < b.Owner.String()
		}
		return a.Spender.String() < b.Spender.String()
	})
	return json.Marshal(snap)
}

func (l *Ledger) Import(data []byte) error {
	var snap ledgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode ledger snapshot: %w", err)
	}

	assets := make(map[string]*Asset, len(snap.Assets))
	balances := make(map[string]map[account.Address]uint64, len(snap.Assets))
	for i := range snap.Assets {
		a := snap.Assets[i].Asset
		var sum uint64
		bal := make(map[account.Address]uint64, len(snap.Assets[i].Holdings))
		for _, h := range snap.Assets[i].Holdings {
			next, err := calc.CheckedAdd(sum, h.Amount)
			if err != nil {
				return fmt.Errorf("asset %s holdings overflow: %w", a.ID, err)
			}
			sum = next
			bal[h.Holder] = h.Amount
		}
		if sum != a.Supply {
			return fmt.Errorf("asset %s snapshot supply %d does not match holdings %d", a.ID, a.Supply, sum)
		}
		assets[a.ID] = &a
		balances[a.ID] = bal
	}

	allowances := make(map[allowanceKey]uint64, len(snap.Allowances))
	for _, al := range snap.Allowances {
		if _, ok := assets[al.Asset]; !ok {
			return fmt.Errorf("allowance on %w: %s", ErrUnknownAsset, al.Asset)
		}
		if al.Amount > 0 {
			allowances[allowanceKey{asset: al.Asset, owner: al.Owner, spender: al.Spender}] = al.Amount
		}
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.mu.Lock()
	l.assets = assets
	l.balances = balances
	l.allowances = allowances
	l.mu.Unlock()
	return nil
}
