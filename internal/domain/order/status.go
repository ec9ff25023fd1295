package order

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"
	StatusRefunded      Status = "refunded"
	StatusStockConflict Status = "stock_conflict"
)

var (
	// ErrUnknownStatus is returned when parsing an unrecognised status.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrStatusChanged is returned when a concurrent update moved the order
	// out of the expected status.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// InvalidTransitionError is returned for a disallowed status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

var transitions = map[Status][]Status{
	StatusPending:       {StatusProcessing, StatusCancelled},
	StatusProcessing:    {StatusShipped, StatusCancelled},
	StatusShipped:       {StatusDelivered},
	StatusDelivered:     {StatusRefunded},
	StatusStockConflict: {StatusProcessing, StatusCancelled},
}

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered,
		StatusCancelled, StatusRefunded, StatusStockConflict:
		return st, nil
	}
	return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
}

// CanTransition reports whether an order may move from s to next.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}
