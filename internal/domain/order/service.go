package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
)

// ErrForbidden is returned when a non-admin attempts an admin operation.
var ErrForbidden = errors.New("forbidden")

// Service exposes order history and administration.
type Service struct {
	orders Repository
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// Get returns an order visible to the caller. Customers only see their own
// orders; others are reported as not found.
func (s *Service) Get(ctx context.Context, caller auth.Principal, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != caller.UserID && !caller.IsAdmin() {
		return nil, ErrNotFound
	}
	return o, nil
}

// History returns the caller's orders, newest first.
func (s *Service) History(ctx context.Context, caller auth.Principal) ([]Order, error) {
	orders, err := s.orders.ListByCustomer(ctx, caller.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ListByStatus returns every order in status, newest first. Admin only.
func (s *Service) ListByStatus(ctx context.Context, caller auth.Principal, status Status) ([]Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	orders, err := s.orders.ListByStatus(ctx, status)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves an order to a new status if the lifecycle allows it.
// Admin only.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Principal, id string, to Status) (*Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}
	updated, err := s.orders.UpdateStatus(ctx, id, o.Status, to)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	return updated, nil
}
