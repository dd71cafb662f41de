package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/leafsii/leafsii-vault/pkg/kv"
	"go.uber.org/zap"
)

// VaultStore keeps the vault records in a kv.Store under one key prefix per
// vault authority:
//
//	<prefix>:ledger        string, JSON vault.Ledger
//	<prefix>:subaccounts   hash, kind -> JSON vault.SubAccount
//	<prefix>:cooldowns     hash, address -> JSON vault.Cooldown
//
// With a Checkpointer attached, collaborator snapshots join the same batch.
type VaultStore struct {
	kv          kv.Store
	prefix      string
	checkpoints *Checkpointer
	logger      *zap.SugaredLogger
}

func NewVaultStore(store kv.Store, authority account.Address, logger *zap.SugaredLogger) *VaultStore {
	return &VaultStore{
		kv:     store,
		prefix: "lfs:vault:" + authority.String(),
		logger: logger,
	}
}

func (s *VaultStore) WithCheckpoints(c *Checkpointer) *VaultStore {
	s.checkpoints = c
	return s
}

func (s *VaultStore) ledgerKey() string      { return s.prefix + ":ledger" }
func (s *VaultStore) subAccountsKey() string { return s.prefix + ":subaccounts" }
func (s *VaultStore) cooldownsKey() string   { return s.prefix + ":cooldowns" }

func (s *VaultStore) Load(ctx context.Context) (vault.Snapshot, error) {
	var snap vault.Snapshot

	raw, err := s.kv.Get(ctx, s.ledgerKey())
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return snap, nil
	case err != nil:
		return snap, fmt.Errorf("load vault ledger: %w", err)
	}
	if err := json.Unmarshal(raw, &snap.Ledger); err != nil {
		return snap, fmt.Errorf("decode vault ledger: %w", err)
	}

	subs, err := s.kv.HGetAll(ctx, s.subAccountsKey())
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return snap, fmt.Errorf("load sub-accounts: %w", err)
	}
	snap.SubAccounts = make(vault.SubAccounts, len(subs))
	for field, raw := range subs {
		var sub vault.SubAccount
		if err := json.Unmarshal(raw, &sub); err != nil {
			return snap, fmt.Errorf("decode sub-account %s: %w", field, err)
		}
		snap.SubAccounts[sub.Kind] = sub
	}

	cooldowns, err := s.kv.HGetAll(ctx, s.cooldownsKey())
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return snap, fmt.Errorf("load cooldowns: %w", err)
	}
	for field, raw := range cooldowns {
		var cd vault.Cooldown
		if err := json.Unmarshal(raw, &cd); err != nil {
			return snap, fmt.Errorf("decode cooldown %s: %w", field, err)
		}
		snap.Cooldowns = append(snap.Cooldowns, cd)
	}
	sort.Slice(snap.Cooldowns, func(i, j int) bool {
		return snap.Cooldowns[i].Address.String() < snap.Cooldowns[j].Address.String()
	})

	s.logger.Debugw("Vault records loaded",
		"prefix", s.prefix,
		"sub_accounts", len(snap.SubAccounts),
		"cooldowns", len(snap.Cooldowns),
	)
	return snap, nil
}

// Save writes the changed records in a single batch.
func (s *VaultStore) Save(ctx context.Context, ch vault.Changes) error {
	b := kv.NewBatch()

	if ch.Ledger != nil {
		raw, err := json.Marshal(ch.Ledger)
		if err != nil {
			return fmt.Errorf("encode vault ledger: %w", err)
		}
		b.Set(s.ledgerKey(), raw)
	}
	for _, sub := range ch.SubAccounts.List() {
		raw, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("encode sub-account %s: %w", sub.Kind, err)
		}
		b.HSet(s.subAccountsKey(), string(sub.Kind), raw)
	}
	for _, cd := range ch.Cooldowns {
		raw, err := json.Marshal(cd)
		if err != nil {
			return fmt.Errorf("encode cooldown %s: %w", cd.Address, err)
		}
		b.HSet(s.cooldownsKey(), cd.Address.String(), raw)
	}

	if s.checkpoints != nil {
		if err := s.checkpoints.Stage(b, ch.Snapshots); err != nil {
			return fmt.Errorf("stage checkpoints: %w", err)
		}
	}

	if b.Len() == 0 {
		return nil
	}
	if err := s.kv.Apply(ctx, b); err != nil {
		return fmt.Errorf("write vault records: %w", err)
	}
	return nil
}
