package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type memStore struct {
	carts  map[string]*Cart
	getErr error
}

func newMemStore() *memStore {
	return &memStore{carts: make(map[string]*Cart)}
}

func (m *memStore) Get(_ context.Context, userID string) (*Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Lines = append([]Line(nil), c.Lines...)
	return &cp, nil
}

func (m *memStore) Put(_ context.Context, c *Cart) error {
	if c.IsEmpty() {
		delete(m.carts, c.UserID)
		return nil
	}
	m.carts[c.UserID] = c
	return nil
}

func (m *memStore) Delete(_ context.Context, userID string) error {
	delete(m.carts, userID)
	return nil
}

func (m *memStore) DeleteIfUnchanged(ctx context.Context, c *Cart) (bool, error) {
	cur, ok := m.carts[c.UserID]
	if !ok || cur.Revision != c.Revision {
		return false, nil
	}
	return true, m.Delete(ctx, c.UserID)
}

type mockProductRepo struct {
	byID map[int64]product.Product
}

func (m *mockProductRepo) GetActive(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetActiveByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) DecrementStock(_ context.Context, _ int64, _ int) (*int, error) {
	return nil, errors.New("not used")
}

// --- Helpers ---

func qtyPtr(v int) *int { return &v }

func newCatalog(products ...product.Product) *mockProductRepo {
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

// --- Tests ---

func TestService_Add_MergesQuantities(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, newCatalog(product.Product{
		ID: 1, Name: "Mug", Price: decimal.RequireFromString("4.50"), IsActive: true,
	}))
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", AddRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	c, err := svc.Add(ctx, "u1", AddRequest{ProductID: 1, Quantity: 3, VariantID: "blue"})
	require.NoError(t, err)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 5, c.Lines[0].Quantity)
	assert.Equal(t, "blue", c.Lines[0].VariantID)
	assert.False(t, store.carts["u1"].UpdatedAt.IsZero())
}

func TestService_Add_Rejections(t *testing.T) {
	catalog := newCatalog(product.Product{
		ID: 1, Price: decimal.NewFromInt(1), IsActive: true, ManageStock: true, Qty: qtyPtr(3),
	})

	t.Run("invalid quantity", func(t *testing.T) {
		svc := NewService(newMemStore(), catalog)
		_, err := svc.Add(context.Background(), "u1", AddRequest{ProductID: 1, Quantity: 0})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("unknown product", func(t *testing.T) {
		svc := NewService(newMemStore(), catalog)
		_, err := svc.Add(context.Background(), "u1", AddRequest{ProductID: 42, Quantity: 1})
		var ue *UnavailableError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, int64(42), ue.ProductID)
	})

	t.Run("merged quantity exceeds stock", func(t *testing.T) {
		store := newMemStore()
		svc := NewService(store, catalog)
		_, err := svc.Add(context.Background(), "u1", AddRequest{ProductID: 1, Quantity: 2})
		require.NoError(t, err)

		_, err = svc.Add(context.Background(), "u1", AddRequest{ProductID: 1, Quantity: 2})
		var oe *OutOfStockError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, 4, oe.Requested)
		assert.Equal(t, 3, oe.Available)
		assert.Equal(t, 2, store.carts["u1"].Lines[0].Quantity)
	})

	t.Run("corrupt cart is not overwritten", func(t *testing.T) {
		store := newMemStore()
		store.getErr = &CorruptError{UserID: "u1", Err: errors.New("bad")}
		svc := NewService(store, catalog)
		_, err := svc.Add(context.Background(), "u1", AddRequest{ProductID: 1, Quantity: 1})
		require.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestService_Update(t *testing.T) {
	catalog := newCatalog(
		product.Product{ID: 1, Price: decimal.NewFromInt(1), IsActive: true, ManageStock: true, Qty: qtyPtr(10)},
		product.Product{ID: 2, Price: decimal.NewFromInt(2), IsActive: true},
	)
	ctx := context.Background()

	store := newMemStore()
	svc := NewService(store, catalog)
	_, err := svc.Add(ctx, "u1", AddRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u1", AddRequest{ProductID: 2, Quantity: 1})
	require.NoError(t, err)

	c, err := svc.Update(ctx, "u1", UpdateRequest{ProductID: 1, Quantity: qtyPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, c.Lines[0].Quantity)

	_, err = svc.Update(ctx, "u1", UpdateRequest{ProductID: 1, Quantity: qtyPtr(11)})
	var oe *OutOfStockError
	require.ErrorAs(t, err, &oe)

	variant := "large"
	c, err = svc.Update(ctx, "u1", UpdateRequest{ProductID: 2, VariantID: &variant})
	require.NoError(t, err)
	assert.Equal(t, "large", c.Lines[1].VariantID)

	c, err = svc.Update(ctx, "u1", UpdateRequest{ProductID: 1, Quantity: qtyPtr(0)})
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, int64(2), c.Lines[0].ProductID)

	_, err = svc.Update(ctx, "u1", UpdateRequest{ProductID: 99, Quantity: qtyPtr(1)})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestService_RemoveAndClear(t *testing.T) {
	catalog := newCatalog(product.Product{ID: 1, Price: decimal.NewFromInt(1), IsActive: true})
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, catalog)

	_, err := svc.Add(ctx, "u1", AddRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.Remove(ctx, "u1", 5)
	require.ErrorIs(t, err, ErrItemNotFound)

	c, err := svc.Remove(ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.NotContains(t, store.carts, "u1")

	_, err = svc.Remove(ctx, "u1", 1)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Add(ctx, "u1", AddRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "u1"))
	assert.NotContains(t, store.carts, "u1")
}

func TestService_View(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.carts["u1"] = &Cart{UserID: "u1", Lines: []Line{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 3, Quantity: 4},
	}}
	svc := NewService(store, newCatalog(
		product.Product{ID: 1, Name: "Mug", Price: decimal.RequireFromString("4.50"), IsActive: true},
		product.Product{ID: 3, Name: "Tea", Price: decimal.RequireFromString("1.25"), IsActive: true},
	))

	v, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	assert.Equal(t, 6, v.Count)
	assert.True(t, decimal.RequireFromString("14.00").Equal(v.SubTotal), "got %s", v.SubTotal)
	assert.Equal(t, []int64{2}, v.Unavailable)
	assert.Len(t, store.carts["u1"].Lines, 3)

	empty, err := svc.View(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty.Lines)
	assert.True(t, decimal.Zero.Equal(empty.SubTotal))
}
