package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leafsii/leafsii-vault/internal/vault"
	"go.uber.org/zap"
)

// Repository is the Postgres event journal. The schema lives in sql/.
type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var _ Journal = (*Repository)(nil)

func NewRepository(db *sql.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) HandleEvents(ctx context.Context, events []vault.Event) error {
	return r.StoreBatchEvents(ctx, events)
}

func (r *Repository) StoreBatchEvents(ctx context.Context, events []vault.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vault_events (id, type, ts, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		rec, err := newRecord(event)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, string(rec.Type), rec.Timestamp, []byte(rec.Payload)); err != nil {
			return fmt.Errorf("failed to store %s event: %w", rec.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debugw("Stored batch of events", "count", len(events))
	return nil
}

func (r *Repository) List(ctx context.Context, q Query) (Page, error) {
	limit, before, err := q.normalize()
	if err != nil {
		return Page{}, err
	}

	query := `
		SELECT seq, id, type, ts, payload
		FROM vault_events
		WHERE ($1 = '' OR type = $1)
		AND ($2 = 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, string(q.Type), before, limit+1) // +1 to check if there are more
	if err != nil {
		return Page{}, fmt.Errorf("failed to query vault events: %w", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var (
			rec     Record
			typ     string
			payload []byte
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &typ, &rec.Timestamp, &payload); err != nil {
			return Page{}, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Type = vault.EventType(typ)
		rec.Payload = payload
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("row iteration error: %w", err)
	}

	if len(page.Records) > limit {
		page.Records = page.Records[:limit]
		page.NextCursor = cursorOf(page.Records[limit-1])
	}
	return page, nil
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
