package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/cart"
)

// DefaultCartTTL is how long an untouched cart is kept.
const DefaultCartTTL = 30 * 24 * time.Hour

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store. Each cart is one JSON document under
// key cart:<user id> whose expiry is refreshed on every write.
type CartStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewCartStore returns a CartStore. A non-positive ttl means DefaultCartTTL.
func NewCartStore(client goredis.UniversalClient, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

// Get loads the cart of userID. It returns cart.ErrNotFound if no cart is
// stored and a *cart.CorruptError if the document cannot be parsed.
func (s *CartStore) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get cart %q", userID)
	}
	c, err := cart.Decode(userID, data)
	if err != nil {
		return nil, err
	}
	c.Revision = string(data)
	return c, nil
}

// Put replaces the cart document. An empty cart is deleted instead.
func (s *CartStore) Put(ctx context.Context, c *cart.Cart) error {
	if c.IsEmpty() {
		return s.Delete(ctx, c.UserID)
	}
	if err := s.client.Set(ctx, cartKey(c.UserID), cart.Encode(c), s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "put cart %q", c.UserID)
	}
	return nil
}

// Delete removes the cart. Deleting a missing cart is not an error.
func (s *CartStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return errors.Wrapf(err, "delete cart %q", userID)
	}
	return nil
}

// DeleteIfUnchanged removes the cart if the stored document is still the one
// c was read from. A cart without a revision is deleted unconditionally.
func (s *CartStore) DeleteIfUnchanged(ctx context.Context, c *cart.Cart) (bool, error) {
	if c.Revision == "" {
		return true, s.Delete(ctx, c.UserID)
	}
	n, err := deleteIfEqualScript.Run(ctx, s.client, []string{cartKey(c.UserID)}, c.Revision).Int()
	if err != nil {
		return false, errors.Wrapf(err, "delete cart %q", c.UserID)
	}
	return n == 1, nil
}

func cartKey(userID string) string {
	return "cart:" + userID
}
