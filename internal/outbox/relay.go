package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/broker"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// RelayOptions configures a Relay.
type RelayOptions struct {
	// Interval between polls. Defaults to one second.
	Interval time.Duration
	// BatchSize caps records fetched per poll. Defaults to 100.
	BatchSize int
}

// Relay polls the outbox and publishes pending records in id order.
// Delivery is at least once: a record published but not marked is sent
// again on the next poll.
type Relay struct {
	store    Store
	pub      broker.Publisher
	interval time.Duration
	batch    int
}

// NewRelay creates a Relay.
func NewRelay(store Store, pub broker.Publisher, opts RelayOptions) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Relay{store: store, pub: pub, interval: opts.Interval, batch: opts.BatchSize}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("outbox")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil && ctx.Err() == nil {
				lg.Warn("Relay outbox", zap.Int("published", n), zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Relayed outbox records", zap.Int("published", n))
			}
		}
	}
}

// Flush publishes one batch of pending records and returns how many were
// published. It stops at the first failure so later records never overtake
// an earlier one.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}

	var n int
	for _, rec := range recs {
		if err := r.pub.Publish(ctx, broker.Message{
			ID:      rec.EventID,
			Type:    rec.Type,
			Key:     rec.Key,
			Payload: rec.Payload,
		}); err != nil {
			return n, errors.Wrapf(err, "publish record %d", rec.ID)
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return n, errors.Wrapf(err, "mark record %d", rec.ID)
		}
		n++
	}
	return n, nil
}
