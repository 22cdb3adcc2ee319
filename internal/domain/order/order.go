package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// transitions lists the allowed forward moves. Anything else is rejected.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransitionTo reports whether moving from s to next is a forward move.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

var (
	// ErrNotFound is returned when an order does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned for a status move the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrStatusConflict is returned when the stored status no longer matches
	// the expected one.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Order is a committed checkout. It owns its Items.
type Order struct {
	ID             string
	UserID         string
	Items          []Item
	Subtotal       decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Currency       string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is a line of an order with the unit price captured at purchase.
type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// LineTotal returns Price × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsSubtotal sums the line totals.
func (o *Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order and its items.
	Create(ctx context.Context, o *Order) error
	// GetByID returns an order owned by userID.
	GetByID(ctx context.Context, userID, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus moves an order from one status to another if it is
	// still in from. Returns ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}
