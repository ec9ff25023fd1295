// Package outbox relays events stored alongside orders to a message broker.
package outbox

import (
	"context"
	"time"
)

// Record is a stored event waiting for delivery.
type Record struct {
	ID        int64
	EventID   string
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Store reads and acknowledges outbox records.
type Store interface {
	// FetchPending returns up to limit unsent records, oldest first.
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	// MarkSent records that the record was published.
	MarkSent(ctx context.Context, id int64) error
}
