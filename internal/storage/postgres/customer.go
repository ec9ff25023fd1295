package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/customer"
)

const getCustomerSQL = `SELECT id, email, phone, first_name, last_name
	FROM users WHERE id = $1`

var _ customer.Directory = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Directory on the users table.
type CustomerRepository struct {
	db DB
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(db DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Get returns the customer with the given user id.
func (r *CustomerRepository) Get(ctx context.Context, userID string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.db.QueryRow(ctx, getCustomerSQL, userID).Scan(
		&c.ID, &c.Email, &c.Phone, &c.FirstName, &c.LastName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", userID, err)
	}
	return &c, nil
}
