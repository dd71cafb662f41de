package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/leafsii/leafsii-vault/internal/vault"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Record is a journaled vault event. Seq is assigned by the journal and grows
// with commit order.
type Record struct {
	Seq       int64           `json:"seq"`
	ID        uuid.UUID       `json:"id"`
	Type      vault.EventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Query selects journal records newest first. Cursor is the NextCursor of a
// previous page.
type Query struct {
	Type   vault.EventType
	Limit  int
	Cursor string
}

type Page struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// Journal is an append-only vault event log.
type Journal interface {
	vault.EventSink
	List(ctx context.Context, q Query) (Page, error)
	Ping(ctx context.Context) error
}

func newRecord(e vault.Event) (Record, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
	}
	return Record{ID: e.ID, Type: e.Type, Timestamp: e.Timestamp.UTC(), Payload: payload}, nil
}

// normalize applies the page size bounds and decodes the cursor. A zero
// before means no upper bound.
func (q Query) normalize() (limit int, before int64, err error) {
	limit = q.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	if q.Cursor == "" {
		return limit, 0, nil
	}
	before, err = strconv.ParseInt(q.Cursor, 10, 64)
	if err != nil || before <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCursor, q.Cursor)
	}
	return limit, before, nil
}

func cursorOf(r Record) string {
	return strconv.FormatInt(r.Seq, 10)
}
