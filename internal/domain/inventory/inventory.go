// Package inventory defines the stock ledger used by checkout.
package inventory

import (
	"context"
	"fmt"
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity one line may carry. Stock is stored in
// a 32-bit column.
const MaxQuantity = math.MaxInt32

var (
	// ErrInsufficientStock matches any *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity is returned by a Ledger for a quantity outside
	// [1, MaxQuantity].
	ErrInvalidQuantity = errors.New("quantity out of range")
)

// ValidQuantity reports whether q is in [1, MaxQuantity].
func ValidQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}

// InsufficientStockError reports a product that could not cover the
// requested quantity. A product that does not exist has Available 0.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Ledger owns per-product stock counts.
//
// Stock never goes negative: TryDecrement either removes the full quantity
// or changes nothing.
type Ledger interface {
	// TryDecrement atomically takes qty units of productID if at least qty are
	// available and returns the product's current price. A missing product is
	// reported the same way as a short one.
	TryDecrement(ctx context.Context, productID string, qty int) (decimal.Decimal, error)
	// Restock returns qty units to productID. Used only by compensation.
	Restock(ctx context.Context, productID string, qty int) error
}
