package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/broker"
)

// --- Mock implementations ---

type memStore struct {
	mu      sync.Mutex
	records []Record
	sent    map[int64]bool
	markErr error
}

func newMemStore(n int) *memStore {
	s := &memStore{sent: make(map[int64]bool)}
	for i := 1; i <= n; i++ {
		s.records = append(s.records, Record{ID: int64(i), EventID: string(rune('a' + i - 1)), Type: "order.placed"})
	}
	return s
}

func (s *memStore) FetchPending(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if !s.sent[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.sent[id] = true
	return nil
}

func (s *memStore) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records) - len(s.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	ids    []string
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, m broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.ID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.ids = append(p.ids, m.ID)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// --- Tests ---

func TestRelay_FlushBatches(t *testing.T) {
	store := newMemStore(5)
	pub := &recordingPublisher{}
	r := NewRelay(store, pub, RelayOptions{BatchSize: 2})

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, store.pending())

	for store.pending() > 0 {
		_, err := r.Flush(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, pub.ids)
}

func TestRelay_StopsAtFirstFailure(t *testing.T) {
	store := newMemStore(3)
	pub := &recordingPublisher{failOn: "b"}
	r := NewRelay(store, pub, RelayOptions{})

	n, err := r.Flush(context.Background())
	require.ErrorContains(t, err, "broker unavailable")
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, pub.ids)
	assert.Equal(t, 2, store.pending(), "c must wait for b")
}

func TestRelay_MarkFailureRepublishes(t *testing.T) {
	store := newMemStore(1)
	store.markErr = errors.New("db down")
	pub := &recordingPublisher{}
	r := NewRelay(store, pub, RelayOptions{})

	_, err := r.Flush(context.Background())
	require.Error(t, err)

	store.markErr = nil
	_, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, pub.ids)
}

func TestRelay_Run(t *testing.T) {
	store := newMemStore(3)
	pub := &recordingPublisher{}
	r := NewRelay(store, pub, RelayOptions{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return store.pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
