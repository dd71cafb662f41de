// Package kv provides a Redis-like key-value store abstraction with in-memory
// and Redis-backed implementations.
//
// The vault service keeps its records (ledger, sub-accounts, cooldowns) and
// collaborator checkpoints in a Store. Writes that must land together go
// through a Batch:
//
//	b := kv.NewBatch().
//		Set("vault:ledger", ledgerJSON).
//		HSet("vault:cooldowns", addr, cooldownJSON)
//	if err := store.Apply(ctx, b); err != nil {
//		return err
//	}
//
// Backends register themselves with RegisterBackend from an init function, so
// callers blank-import the backends they want and pick one with
// NewStoreFromConfig.
package kv
