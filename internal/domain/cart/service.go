package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// UnavailableError reports that a product cannot be added to a cart.
type UnavailableError struct {
	ProductID int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %d not found or not available", e.ProductID)
}

// OutOfStockError reports that the requested quantity exceeds the stock.
type OutOfStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// AddRequest describes a product being put into the cart.
type AddRequest struct {
	ProductID int64
	Quantity  int
	VariantID string
	Options   string
}

// UpdateRequest changes an existing line. A nil Quantity keeps the current
// value; a zero Quantity removes the line.
type UpdateRequest struct {
	ProductID int64
	Quantity  *int
	VariantID *string
}

// ViewLine is a cart line joined with live catalog data.
type ViewLine struct {
	Line
	Name      string
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// View is the cart as presented to its owner.
type View struct {
	Lines    []ViewLine
	Count    int
	SubTotal decimal.Decimal
	// Unavailable lists products still stored in the cart that are no
	// longer active. Checkout will reject them.
	Unavailable []int64
}

// Service implements cart management on top of a Store.
type Service struct {
	store    Store
	products product.Repository
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(store Store, products product.Repository) *Service {
	return &Service{store: store, products: products, now: time.Now}
}

// Add puts a product into the user's cart, merging quantities with an
// existing line for the same product. The product must be active and have
// enough stock for the merged quantity.
func (s *Service) Add(ctx context.Context, userID string, req AddRequest) (*Cart, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetActive(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &UnavailableError{ProductID: req.ProductID}
		}
		return nil, errors.Wrap(err, "get product")
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	i := c.index(req.ProductID)
	if i >= 0 {
		qty += c.Lines[i].Quantity
	}
	if !p.HasStock(qty) {
		return nil, &OutOfStockError{ProductID: p.ID, Requested: qty, Available: *p.Qty}
	}

	if i >= 0 {
		c.Lines[i].Quantity = qty
		if req.VariantID != "" {
			c.Lines[i].VariantID = req.VariantID
		}
		if req.Options != "" {
			c.Lines[i].Options = req.Options
		}
	} else {
		c.Lines = append(c.Lines, Line{
			ProductID: req.ProductID,
			Quantity:  qty,
			VariantID: req.VariantID,
			Options:   req.Options,
		})
	}

	return c, s.save(ctx, c)
}

// Update changes the quantity or variant of a line already in the cart.
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (*Cart, error) {
	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := c.index(req.ProductID)
	if i < 0 {
		return nil, ErrItemNotFound
	}

	if req.Quantity != nil {
		switch q := *req.Quantity; {
		case q < 0:
			return nil, ErrInvalidQuantity
		case q == 0:
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return c, s.save(ctx, c)
		default:
			p, err := s.products.GetActive(ctx, req.ProductID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return nil, &UnavailableError{ProductID: req.ProductID}
				}
				return nil, errors.Wrap(err, "get product")
			}
			if !p.HasStock(q) {
				return nil, &OutOfStockError{ProductID: p.ID, Requested: q, Available: *p.Qty}
			}
			c.Lines[i].Quantity = q
		}
	}
	if req.VariantID != nil {
		c.Lines[i].VariantID = *req.VariantID
	}

	return c, s.save(ctx, c)
}

// Remove drops a product from the cart.
func (s *Service) Remove(ctx context.Context, userID string, productID int64) (*Cart, error) {
	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := c.index(productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return c, s.save(ctx, c)
}

// Clear deletes the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

// View returns the cart joined with current catalog prices. Lines whose
// product is no longer active are reported in Unavailable and excluded from
// the subtotal, but stay in storage.
func (s *Service) View(ctx context.Context, userID string) (*View, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &View{SubTotal: decimal.Zero}
	if c.IsEmpty() {
		return v, nil
	}

	found, err := s.products.GetActiveByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	for _, l := range c.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			v.Unavailable = append(v.Unavailable, l.ProductID)
			continue
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		v.Lines = append(v.Lines, ViewLine{
			Line:      l,
			Name:      p.Name,
			UnitPrice: p.Price,
			LineTotal: total,
		})
		v.Count += l.Quantity
		v.SubTotal = v.SubTotal.Add(total)
	}
	v.SubTotal = v.SubTotal.Round(2)
	return v, nil
}

// load returns the stored cart or a fresh empty one.
func (s *Service) load(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.store.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return &Cart{UserID: userID}, nil
	case err != nil:
		return nil, err
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = s.now()
	if err := s.store.Put(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}
