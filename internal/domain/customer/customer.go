// Package customer exposes the read-only customer directory used to
// snapshot buyer details onto orders.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer exists for a user id.
var ErrNotFound = errors.New("customer not found")

// Customer holds the contact details copied onto an order at checkout.
type Customer struct {
	ID        string
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// Directory looks up customers by user id.
type Directory interface {
	Get(ctx context.Context, userID string) (*Customer, error)
}
