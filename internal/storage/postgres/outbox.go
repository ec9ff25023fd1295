package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/outbox"
)

const (
	fetchPendingSQL = `SELECT id, event_id::text, event_type, aggregate_key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`

	markSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = $1`
)

var _ outbox.Store = (*OutboxRepository)(nil)

// OutboxRepository reads and acknowledges outbox events.
type OutboxRepository struct {
	db DB
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(db DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// FetchPending returns up to limit unsent events, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := r.db.Query(ctx, fetchPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending outbox events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Record, error) {
		var rec outbox.Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Type, &rec.Key, &rec.Payload, &rec.CreatedAt)
		return rec, err
	})
}

// MarkSent records that the event was published.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, markSentSQL, id); err != nil {
		return fmt.Errorf("marking outbox event %d sent: %w", id, err)
	}
	return nil
}
