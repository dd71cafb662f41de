package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/leafsii/leafsii-vault/pkg/kv"
	"go.uber.org/zap"
)

// Snapshotter is a collaborator whose whole state round-trips through JSON,
// such as the role registry, the deny-list and the token ledger.
type Snapshotter interface {
	Export() ([]byte, error)
	Import(data []byte) error
}

// Checkpointer persists collaborator snapshots next to the vault records. The
// VaultStore stages them into the batch of every vault write, so records and
// snapshots land together or not at all.
type Checkpointer struct {
	kv     kv.Store
	prefix string
	logger *zap.SugaredLogger

	mu    sync.Mutex
	names []string
	parts map[string]Snapshotter
}

func NewCheckpointer(store kv.Store, prefix string, logger *zap.SugaredLogger) *Checkpointer {
	return &Checkpointer{
		kv:     store,
		prefix: prefix,
		logger: logger,
		parts:  make(map[string]Snapshotter),
	}
}

// Register adds a named collaborator. Names are checkpointed and restored in
// registration order.
func (c *Checkpointer) Register(name string, s Snapshotter) *Checkpointer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.parts[name]; !ok {
		c.names = append(c.names, name)
	}
	c.parts[name] = s
	return c
}

func (c *Checkpointer) key(name string) string {
	return c.prefix + ":checkpoint:" + name
}

// Restore imports every registered collaborator that has a stored snapshot and
// returns how many were restored.
func (c *Checkpointer) Restore(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	restored := 0
	for _, name := range c.names {
		data, err := c.kv.Get(ctx, c.key(name))
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("read %s checkpoint: %w", name, err)
		}
		if err := c.parts[name].Import(data); err != nil {
			return restored, fmt.Errorf("restore %s: %w", name, err)
		}
		restored++
		c.logger.Infow("Restored checkpoint", "name", name, "bytes", len(data))
	}
	return restored, nil
}

// Stage queues every snapshot onto b. A snapshot in staged wins over a fresh
// Export of the registered part, so a caller holding an open ledger
// transaction passes the ledger snapshot it took inside that transaction.
func (c *Checkpointer) Stage(b *kv.Batch, staged map[string][]byte) error {
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	parts := make(map[string]Snapshotter, len(c.parts))
	for name, p := range c.parts {
		parts[name] = p
	}
	c.mu.Unlock()

	for _, name := range names {
		if _, ok := staged[name]; ok {
			continue
		}
		data, err := parts[name].Export()
		if err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		b.Set(c.key(name), data)
	}

	stagedNames := make([]string, 0, len(staged))
	for name := range staged {
		stagedNames = append(stagedNames, name)
	}
	sort.Strings(stagedNames)
	for _, name := range stagedNames {
		b.Set(c.key(name), staged[name])
	}
	return nil
}
