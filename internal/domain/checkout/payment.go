package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

// ErrPaymentDeclined is returned by a PaymentAuthorizer that refused the order.
var ErrPaymentDeclined = errors.New("payment declined")

// PaymentAuthorizer confirms payment for a committed order. It runs after
// the commit, so a failure cannot roll anything back.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, o *order.Order) error
}

// AlwaysAuthorize approves every order.
type AlwaysAuthorize struct{}

func (AlwaysAuthorize) Authorize(context.Context, *order.Order) error { return nil }

// PaymentFunc adapts a function to PaymentAuthorizer.
type PaymentFunc func(ctx context.Context, o *order.Order) error

func (f PaymentFunc) Authorize(ctx context.Context, o *order.Order) error { return f(ctx, o) }
