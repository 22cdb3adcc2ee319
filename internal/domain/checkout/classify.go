package checkout

import (
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// Reason is the caller-facing category of a failed operation.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonValidation        Reason = "validation"
	ReasonNotFound          Reason = "not_found"
	ReasonInsufficientStock Reason = "insufficient_stock"
	ReasonDiscountRejected  Reason = "discount_rejected"
	ReasonDiscountRaceLost  Reason = "discount_race_lost"
	ReasonContended         Reason = "contended"
	ReasonInternal          Reason = "internal"
)

// Recoverable reports whether the caller can fix the failure by editing
// the cart or retrying.
func (r Reason) Recoverable() bool {
	return r != ReasonInternal && r != ReasonNone
}

// Classify maps err onto a Reason. Unknown errors are internal.
func Classify(err error) Reason {
	var (
		pnf *ProductNotFoundError
	)
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrMissingUser),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidTransition):
		return ReasonValidation
	case errors.As(err, &pnf),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, discount.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, inventory.ErrInsufficientStock):
		return ReasonInsufficientStock
	case errors.Is(err, discount.ErrUsageUnavailable):
		return ReasonDiscountRaceLost
	case discount.IsRejection(err):
		return ReasonDiscountRejected
	case errors.Is(err, ErrContended):
		return ReasonContended
	default:
		return ReasonInternal
	}
}
