package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
)

func writeDump(t *testing.T, dir, name string, codes ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(codes, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func testConfig() ingestConfig {
	return ingestConfig{MinFiles: 2, MinLen: 8, MaxLen: 10, Capacity: 1000, FalsePositive: 0.0001, Writers: 2}
}

func TestIngesterCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeDump(t, dir, "a.gz", "HAPPYHRS", "ONLYINAAA", "SHORT", "FIFTYOFF"),
		writeDump(t, dir, "b.gz", "HAPPYHRS", "ONLYINBBB", "FIFTYOFF", "WAYTOOLONGCODE"),
		writeDump(t, dir, "c.gz", "FIFTYOFF", "ONLYINCCC"),
	}

	t.Run("TwoFiles", func(t *testing.T) {
		codes, err := newIngester(testConfig()).Codes(context.Background(), files)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"HAPPYHRS", "FIFTYOFF"}, codes)
	})
	t.Run("ThreeFiles", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinFiles = 3
		codes, err := newIngester(cfg).Codes(context.Background(), files)
		require.NoError(t, err)
		assert.Equal(t, []string{"FIFTYOFF"}, codes)
	})
	t.Run("OneFile", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinFiles = 1
		codes, err := newIngester(cfg).Codes(context.Background(), files[2:])
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"FIFTYOFF", "ONLYINCCC"}, codes)
	})
	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newIngester(testConfig()).Codes(ctx, files)
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("MissingFile", func(t *testing.T) {
		_, err := newIngester(testConfig()).Codes(context.Background(), []string{filepath.Join(dir, "nope.gz")})
		assert.Error(t, err)
	})
}

func TestRuleFor(t *testing.T) {
	c := ruleFor("HAPPYHRS").toCoupon("HAPPYHRS")
	assert.True(t, c.IsPercent)
	assert.True(t, decimal.NewFromInt(18).Equal(c.Value))
	assert.True(t, c.IsActive)
	require.NotNil(t, c.UsageLimitPerCustomer)
	assert.Equal(t, 1, *c.UsageLimitPerCustomer)

	c = ruleFor("OVER9000XY").toCoupon("OVER9000XY")
	assert.False(t, c.IsPercent)
	assert.True(t, decimal.NewFromInt(9).Equal(c.Value))
	require.NotNil(t, c.MinimumSpend)

	c = ruleFor("BIRTHDAY").toCoupon("BIRTHDAY")
	assert.True(t, c.FreeShipping)
	assert.True(t, c.Value.IsZero())

	c = ruleFor("RANDOM123").toCoupon("RANDOM123")
	assert.True(t, c.IsPercent)
	assert.True(t, decimal.NewFromInt(10).Equal(c.Value))
}

type memWriter struct {
	mu    sync.Mutex
	codes map[string]coupon.Coupon
	fail  string
}

func (m *memWriter) UpsertCoupon(_ context.Context, c coupon.Coupon) (int64, error) {
	if c.Code == m.fail {
		return 0, errors.New("constraint violation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.Code] = c
	return int64(len(m.codes)), nil
}

func TestWriteCoupons(t *testing.T) {
	w := &memWriter{codes: map[string]coupon.Coupon{}}
	require.NoError(t, writeCoupons(context.Background(), w, []string{"HAPPYHRS", "FIFTYOFF", "RANDOM123"}, 2))
	assert.Len(t, w.codes, 3)
	assert.True(t, w.codes["FIFTYOFF"].Value.Equal(decimal.NewFromInt(50)))

	w = &memWriter{codes: map[string]coupon.Coupon{}, fail: "FIFTYOFF"}
	err := writeCoupons(context.Background(), w, []string{"HAPPYHRS", "FIFTYOFF"}, 1)
	assert.ErrorContains(t, err, "upsert FIFTYOFF")
}
