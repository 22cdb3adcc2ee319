// Package cart manages per-user shopping cart lines.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned for a missing cart line and for a line owned
	// by another user. The two cases are indistinguishable on purpose.
	ErrNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned when a line would end up below 1 or
	// above inventory.MaxQuantity.
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")
)

// Item is a cart line joined with the live product read model.
type Item struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time

	// Live product fields. Not authoritative for checkout pricing.
	ProductName string
	Price       decimal.Decimal
	Stock       int
}

// Repository owns cart lines. Every method is scoped to userID.
type Repository interface {
	List(ctx context.Context, userID string) ([]Item, error)
	Get(ctx context.Context, userID, itemID string) (*Item, error)
	// Upsert creates the line with quantity delta, or adds delta to an
	// existing one. Fails with ErrInvalidQuantity if the result is below 1.
	Upsert(ctx context.Context, userID, productID string, delta int) (*Item, error)
	SetQuantity(ctx context.Context, userID, itemID string, quantity int) (*Item, error)
	Remove(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
	// Count returns the total quantity across the user's lines.
	Count(ctx context.Context, userID string) (int, error)
}
