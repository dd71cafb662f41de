package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/vault"
	"github.com/leafsii/leafsii-vault/pkg/kv"
	"go.uber.org/zap"
)

// KVJournal keeps the event log in a kv.Store list. It backs deployments
// without Postgres.
type KVJournal struct {
	kv     kv.Store
	prefix string
	logger *zap.SugaredLogger
}

var _ Journal = (*KVJournal)(nil)

func NewKVJournal(store kv.Store, prefix string, logger *zap.SugaredLogger) *KVJournal {
	return &KVJournal{kv: store, prefix: prefix, logger: logger}
}

func (j *KVJournal) listKey() string { return j.prefix + ":journal" }
func (j *KVJournal) seqKey() string  { return j.prefix + ":journal:seq" }

func (j *KVJournal) HandleEvents(ctx context.Context, events []vault.Event) error {
	if len(events) == 0 {
		return nil
	}

	last, err := j.kv.IncrBy(ctx, j.seqKey(), int64(len(events)))
	if err != nil {
		return fmt.Errorf("failed to reserve journal sequence: %w", err)
	}
	first := last - int64(len(events)) + 1

	values := make([][]byte, 0, len(events))
	for i, e := range events {
		rec, err := newRecord(e)
		if err != nil {
			return err
		}
		rec.Seq = first + int64(i)
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal journal record: %w", err)
		}
		values = append(values, raw)
	}

	if _, err := j.kv.RPush(ctx, j.listKey(), values...); err != nil {
		return fmt.Errorf("failed to append journal records: %w", err)
	}
	j.logger.Debugw("Journaled events", "count", len(events), "last_seq", last)
	return nil
}

func (j *KVJournal) List(ctx context.Context, q Query) (Page, error) {
	limit, before, err := q.normalize()
	if err != nil {
		return Page{}, err
	}

	raw, err := j.kv.LRange(ctx, j.listKey(), 0, -1)
	if errors.Is(err, kv.ErrNotFound) {
		return Page{}, nil
	}
	if err != nil {
		return Page{}, fmt.Errorf("failed to read journal: %w", err)
	}

	var page Page
	for i := len(raw) - 1; i >= 0; i-- {
		var rec Record
		if err := json.Unmarshal(raw[i], &rec); err != nil {
			return Page{}, fmt.Errorf("failed to decode journal record: %w", err)
		}
		if before != 0 && rec.Seq >= before {
			continue
		}
		if q.Type != "" && rec.Type != q.Type {
			continue
		}
		if len(page.Records) == limit {
			page.NextCursor = cursorOf(page.Records[limit-1])
			break
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

func (j *KVJournal) Ping(ctx context.Context) error {
	return j.kv.Ping(ctx)
}
