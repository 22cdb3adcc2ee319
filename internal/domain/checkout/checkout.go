// Package checkout turns a cart into a durable order.
//
// A checkout is priced outside any transaction for early rejection, then
// committed in a single transaction that decrements stock, consumes the
// discount usage slot, stores the order and clears the cart. Prices and
// discount state are re-read inside that transaction; the pre-transaction
// quote is never trusted for the stored totals.
package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
)

var (
	// ErrEmptyCart is returned when there is nothing to check out.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrMissingUser is returned when a request carries no user identity.
	ErrMissingUser = errors.New("user identity required")
	// ErrInvalidQuantity matches any *InvalidQuantityError.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrDuplicateRequest is returned by an IdempotencyStore when the key
	// was already claimed by a committed checkout.
	ErrDuplicateRequest = errors.New("duplicate checkout request")
	// ErrRequestNotFound is returned by IdempotencyStore.Lookup for an
	// unclaimed key.
	ErrRequestNotFound = errors.New("checkout request not found")
	// ErrContended is returned by a Transactor that kept losing
	// serialization conflicts until its retry policy ran out. Nothing was
	// committed and the caller may retry.
	ErrContended = errors.New("checkout is contended, retry shortly")
)

// InvalidQuantityError names a line whose quantity, after merging duplicate
// lines, is below 1 or above inventory.MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity for product %q must be between 1 and %d, got %d",
		e.ProductID, inventory.MaxQuantity, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// ProductNotFoundError names a line whose product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.ProductID)
}

// Line is a requested (product, quantity) pair. PriceHint is what the
// client believes the unit price is. It is logged when it differs from the
// live price and otherwise ignored.
type Line struct {
	ProductID string
	Quantity  int
	PriceHint *decimal.Decimal
}

// Request is a checkout attempt. When Items is empty the user's stored cart
// is used.
type Request struct {
	UserID         string
	Items          []Line
	DiscountCode   string
	IdempotencyKey string
}

// QuotedLine is a line priced at the live unit price.
type QuotedLine struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

// LineTotal returns Price × Quantity.
func (l QuotedLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Quote is a priced, uncommitted checkout.
type Quote struct {
	Lines          []QuotedLine
	Subtotal       decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// Result is a committed checkout.
type Result struct {
	Order *order.Order
	// Replayed is set when the idempotency key matched an earlier commit and
	// no ledger was touched.
	Replayed bool
}

// IdempotencyStore records which order a (user, key) pair produced.
type IdempotencyStore interface {
	// Claim binds key to orderID. Returns ErrDuplicateRequest if the key is
	// already bound.
	Claim(ctx context.Context, userID, key, orderID string) error
	// Lookup returns the order bound to key, or ErrRequestNotFound.
	Lookup(ctx context.Context, userID, key string) (string, error)
}

// CartClearer empties a user's cart.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// Stores are the ledgers and repositories bound to one transaction.
type Stores struct {
	Inventory inventory.Ledger
	Discounts discount.Ledger
	Orders    order.Repository
	Carts     CartClearer
	Requests  IdempotencyStore
}

// Transactor runs fn inside a single storage transaction. If fn returns an
// error nothing it did is visible. A Transactor may call fn more than once
// when the backend reports a serialization conflict, so fn must not carry
// state between calls.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// CartReader reads the user's stored cart.
type CartReader interface {
	List(ctx context.Context, userID string) ([]cart.Item, error)
}
