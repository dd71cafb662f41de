package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/calc"
)

// Tx applies mutations to the ledger immediately and keeps an undo journal.
// Only one Tx is open per ledger at a time.
type Tx interface {
	Transfer(ctx context.Context, asset string, from, to account.Address, amount uint64) error
	Mint(ctx context.Context, asset string, authority, to account.Address, amount uint64) error
	Burn(ctx context.Context, asset string, authority, from account.Address, amount uint64) error
	// Redistribute moves from's shares to *to, or burns them when to is nil.
	// It bypasses the transfer hook.
	Redistribute(ctx context.Context, asset string, authority, from account.Address, to *account.Address, amount uint64) error
	Approve(ctx context.Context, asset string, owner, spender account.Address, amount uint64) error
	// TransferFrom moves owner's asset on spender's behalf and spends the allowance.
	TransferFrom(ctx context.Context, asset string, spender, from, to account.Address, amount uint64) error
	// Export snapshots the ledger including this transaction's mutations.
	Export() ([]byte, error)
	Commit() error
	Rollback() error
}

type undoKind int

const (
	undoBalance undoKind = iota
	undoSupply
	undoAllowance
)

type undoRecord struct {
	kind   undoKind
	asset  string
	holder account.Address
	key    allowanceKey
	prev   uint64
}

type ledgerTx struct {
	mu      sync.Mutex
	ledger  *Ledger
	journal []undoRecord
	done    bool
}

// Begin opens a transaction. It blocks while another transaction is open.
func (l *Ledger) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.txMu.Lock()
	return &ledgerTx{ledger: l}, nil
}

func (tx *ledgerTx) Transfer(ctx context.Context, asset string, from, to account.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}

	l := tx.ledger
	l.mu.RLock()
	_, ok := l.assets[asset]
	hook := l.hook
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if hook != nil {
		if err := hook.CheckTransfer(ctx, asset, from, to); err != nil {
			return fmt.Errorf("transfer hook: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return tx.move(asset, from, to, amount)
}

func (tx *ledgerTx) Mint(ctx context.Context, asset string, authority, to account.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}

	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := tx.minter(asset, authority)
	if err != nil {
		return err
	}
	supply, err := calc.CheckedAdd(a.Supply, amount)
	if err != nil {
		return fmt.Errorf("mint %d %s: %w", amount, asset, err)
	}
	tx.recordBalance(asset, to)
	if err := l.credit(asset, to, amount); err != nil {
		return err
	}
	tx.recordSupply(a)
	a.Supply = supply
	return nil
}

func (tx *ledgerTx) Burn(ctx context.Context, asset string, authority, from account.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}

	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := tx.minter(asset, authority)
	if err != nil {
		return err
	}
	return tx.burn(a, from, amount)
}

func (tx *ledgerTx) Redistribute(ctx context.Context, asset string, authority, from account.Address, to *account.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}

	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := tx.authorized(asset, authority)
	if err != nil {
		return err
	}
	if to == nil {
		return tx.burn(a, from, amount)
	}
	return tx.move(asset, from, *to, amount)
}

func (tx *ledgerTx) Approve(ctx context.Context, asset string, owner, spender account.Address, amount uint64) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}

	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.assets[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	tx.setAllowance(allowanceKey{asset: asset, owner: owner, spender: spender}, amount)
	return nil
}

func (tx *ledgerTx) TransferFrom(ctx context.Context, asset string, spender, from, to account.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}

	l := tx.ledger
	l.mu.RLock()
	_, ok := l.assets[asset]
	hook := l.hook
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if hook != nil {
		if err := hook.CheckTransfer(ctx, asset, from, to); err != nil {
			return fmt.Errorf("transfer hook: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{asset: asset, owner: from, spender: spender}
	allowed := l.allowances[key]
	if allowed < amount {
		return fmt.Errorf("%w: %s may move %d %s of %s, needs %d",
			ErrInsufficientAllowance, spender.ShortString(), allowed, asset, from.ShortString(), amount)
	}
	tx.setAllowance(key, allowed-amount)
	return tx.move(asset, from, to, amount)
}

func (tx *ledgerTx) Export() ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.ledger.exportLocked()
}

func (tx *ledgerTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.journal = nil
	tx.ledger.txMu.Unlock()
	return nil
}

// Rollback restores every touched balance and supply in reverse order.
func (tx *ledgerTx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}

	l := tx.ledger
	l.mu.Lock()
	for i := len(tx.journal) - 1; i >= 0; i-- {
		rec := tx.journal[i]
		switch rec.kind {
		case undoBalance:
			if rec.prev == 0 {
				delete(l.balances[rec.asset], rec.holder)
			} else {
				l.balances[rec.asset][rec.holder] = rec.prev
			}
		case undoSupply:
			l.assets[rec.asset].Supply = rec.prev
		case undoAllowance:
			if rec.prev == 0 {
				delete(l.allowances, rec.key)
			} else {
				l.allowances[rec.key] = rec.prev
			}
		}
	}
	l.mu.Unlock()

	tx.done = true
	tx.journal = nil
	l.txMu.Unlock()
	return nil
}

// caller holds ledger.mu.
func (tx *ledgerTx) authorized(asset string, authority account.Address) (*Asset, error) {
	a, ok := tx.ledger.assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if a.Authority != authority {
		return nil, fmt.Errorf("%w: %s is not the authority of %s", ErrInvalidAuthority, authority.ShortString(), asset)
	}
	return a, nil
}

// minter is authorized but also admits the asset's minters. Caller holds ledger.mu.
func (tx *ledgerTx) minter(asset string, addr account.Address) (*Asset, error) {
	a, ok := tx.ledger.assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if !a.canMint(addr) {
		return nil, fmt.Errorf("%w: %s may not mint %s", ErrInvalidAuthority, addr.ShortString(), asset)
	}
	return a, nil
}

func (tx *ledgerTx) move(asset string, from, to account.Address, amount uint64) error {
	l := tx.ledger
	tx.recordBalance(asset, from)
	if err := l.debit(asset, from, amount); err != nil {
		return err
	}
	tx.recordBalance(asset, to)
	return l.credit(asset, to, amount)
}

func (tx *ledgerTx) burn(a *Asset, from account.Address, amount uint64) error {
	tx.recordBalance(a.ID, from)
	if err := tx.ledger.debit(a.ID, from, amount); err != nil {
		return err
	}
	tx.recordSupply(a)
	a.Supply -= amount
	return nil
}

func (tx *ledgerTx) recordBalance(asset string, holder account.Address) {
	tx.journal = append(tx.journal, undoRecord{
		kind:   undoBalance,
		asset:  asset,
		holder: holder,
		prev:   tx.ledger.balances[asset][holder],
	})
}

// setAllowance requires ledger.mu.
func (tx *ledgerTx) setAllowance(key allowanceKey, amount uint64) {
	l := tx.ledger
	tx.journal = append(tx.journal, undoRecord{kind: undoAllowance, key: key, prev: l.allowances[key]})
	if amount == 0 {
		delete(l.allowances, key)
		return
	}
	l.allowances[key] = amount
}

func (tx *ledgerTx) recordSupply(a *Asset) {
	tx.journal = append(tx.journal, undoRecord{kind: undoSupply, asset: a.ID, prev: a.Supply})
}
