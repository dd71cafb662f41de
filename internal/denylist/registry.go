// Package denylist is the in-process deny-list registry: holders flagged here
// may not receive vault shares or base asset, and their locked shares can be
// force-redistributed by the vault.
package denylist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/guardian"
	"go.uber.org/zap"
)

const entrySeed = "blacklist-entry"

var (
	ErrUnauthorized   = errors.New("caller may not manage the deny-list")
	ErrAlreadyDenied  = errors.New("address already deny-listed")
	ErrNotDenied      = errors.New("address not deny-listed")
	ErrInvalidAddress = errors.New("deny-list address must not be the zero address")
	ErrFrozen         = errors.New("transfer involves a frozen holder")
)

// RoleChecker is satisfied by *guardian.Registry.
type RoleChecker interface {
	HasRole(ctx context.Context, registryID, caller account.Address, role guardian.Role) (bool, error)
}

// Entry flags one holder. Its record address is derived from the holder.
type Entry struct {
	Address     account.Address `json:"address"`
	Owner       account.Address `json:"owner"`
	FrozenBase  bool            `json:"frozen_base"`
	FrozenShare bool            `json:"frozen_share"`
	Active      bool            `json:"active"`
	UpdatedAt   int64           `json:"updated_at"`
}

type Registry struct {
	mu      sync.RWMutex
	entries map[account.Address]*Entry

	admin          account.Address
	roles          RoleChecker
	roleRegistryID account.Address
	baseAsset      string
	shareAsset     string

	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRegistry(admin account.Address, roles RoleChecker, roleRegistryID account.Address, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		entries:        make(map[account.Address]*Entry),
		admin:          admin,
		roles:          roles,
		roleRegistryID: roleRegistryID,
		logger:         logger,
		now:            time.Now,
	}
}

// WithAssets tells the transfer hook which asset ids the freeze flags refer to.
func (r *Registry) WithAssets(baseAsset, shareAsset string) *Registry {
	r.baseAsset = baseAsset
	r.shareAsset = shareAsset
	return r
}

func EntryAddress(owner account.Address) account.Address {
	return account.Derive(entrySeed, owner)
}

func (r *Registry) authorize(ctx context.Context, authority account.Address) error {
	if authority == r.admin {
		return nil
	}
	if r.roles == nil {
		return ErrUnauthorized
	}
	ok, err := r.roles.HasRole(ctx, r.roleRegistryID, authority, guardian.RoleGrandMaster)
	if err != nil {
		return fmt.Errorf("check grand master role: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// Add deny-lists user. A previously removed entry is reactivated with the new flags.
func (r *Registry) Add(ctx context.Context, authority, user account.Address, frozenBase, frozenShare bool) error {
	if user.IsZero() {
		return ErrInvalidAddress
	}
	if err := r.authorize(ctx, authority); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	addr := EntryAddress(user)
	entry, ok := r.entries[addr]
	if ok && entry.Active {
		return fmt.Errorf("%w: %s", ErrAlreadyDenied, user)
	}
	if !ok {
		entry = &Entry{Address: addr, Owner: user}
		r.entries[addr] = entry
	}
	entry.Active = true
	entry.FrozenBase = frozenBase
	entry.FrozenShare = frozenShare
	entry.UpdatedAt = r.now().Unix()

	r.logger.Infow("Address deny-listed",
		"user", user.String(),
		"frozen_base", frozenBase,
		"frozen_share", frozenShare,
	)
	return nil
}

func (r *Registry) Remove(ctx context.Context, authority, user account.Address) error {
	if err := r.authorize(ctx, authority); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[EntryAddress(user)]
	if !ok || !entry.Active {
		return fmt.Errorf("%w: %s", ErrNotDenied, user)
	}
	entry.Active = false
	entry.UpdatedAt = r.now().Unix()

	r.logger.Infow("Address removed from deny-list", "user", user.String())
	return nil
}

// IsDenied is false when no entry exists for addr or the stored entry does
// not belong to addr; otherwise it reports whether the entry is active.
func (r *Registry) IsDenied(ctx context.Context, addr account.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[EntryAddress(addr)]
	if !ok || entry.Owner != addr {
		return false, nil
	}
	return entry.Active, nil
}

func (r *Registry) Lookup(addr account.Address) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[EntryAddress(addr)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

func (r *Registry) frozen(addr account.Address, asset string) bool {
	entry, ok := r.entries[EntryAddress(addr)]
	if !ok || !entry.Active || entry.Owner != addr {
		return false
	}
	switch asset {
	case r.baseAsset:
		return entry.FrozenBase
	case r.shareAsset:
		return entry.FrozenShare
	default:
		return false
	}
}

// CheckTransfer is the token ledger transfer hook.
func (r *Registry) CheckTransfer(ctx context.Context, asset string, from, to account.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.frozen(from, asset) {
		return fmt.Errorf("%w: sender %s frozen for %s", ErrFrozen, from, asset)
	}
	if r.frozen(to, asset) {
		return fmt.Errorf("%w: receiver %s frozen for %s", ErrFrozen, to, asset)
	}
	return nil
}

func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Owner.String() < out[j].Owner.String() })
	return out
}

func (r *Registry) Export() ([]byte, error) {
	return json.Marshal(r.Entries())
}

func (r *Registry) Import(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode deny-list snapshot: %w", err)
	}
	m := make(map[account.Address]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		m[e.Address] = &e
	}

	r.mu.Lock()
	r.entries = m
	r.mu.Unlock()
	return nil
}
