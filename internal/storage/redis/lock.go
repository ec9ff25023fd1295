package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/checkout"
)

var _ checkout.Locker = (*Locker)(nil)

// Locker is a non-blocking lease lock on single Redis keys.
type Locker struct {
	client goredis.UniversalClient
	prefix string
}

// NewLocker returns a Locker. Keys are stored as "lock:" + key.
func NewLocker(client goredis.UniversalClient) *Locker {
	return &Locker{client: client, prefix: "lock:"}
}

// TryLock takes key for ttl unless somebody else holds it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	k := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "lock %q", key)
	}
	if !ok {
		return nil, false, nil
	}
	// An expired lock taken over by another holder no longer holds token and
	// is left alone.
	unlock := func(ctx context.Context) error {
		if err := deleteIfEqualScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
			return errors.Wrapf(err, "unlock %q", key)
		}
		return nil
	}
	return unlock, true, nil
}
