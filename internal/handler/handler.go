// Package handler exposes the storefront over HTTP/JSON.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// Carts is the cart use-case surface, implemented by *cart.Service.
type Carts interface {
	List(ctx context.Context, userID string) ([]cart.Item, error)
	Count(ctx context.Context, userID string) (int, error)
	Add(ctx context.Context, userID, productID string, quantity int) (*cart.Item, error)
	SetQuantity(ctx context.Context, userID, itemID string, quantity int) (*cart.Item, error)
	Remove(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
}

// Checkouts is implemented by *checkout.Service.
type Checkouts interface {
	Preview(ctx context.Context, req checkout.Request) (*checkout.Quote, error)
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// Orders is implemented by *order.Service.
type Orders interface {
	Get(ctx context.Context, userID, id string) (*order.Order, error)
	List(ctx context.Context, userID string) ([]order.Order, error)
}

// Discounts is implemented by *discount.Service.
type Discounts interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*discount.Result, error)
}

// Authenticator is implemented by *auth.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth.APIKeyInfo, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
}

// Deps are the use cases served by the Handler.
type Deps struct {
	Products  product.Repository
	Carts     Carts
	Checkouts Checkouts
	Orders    Orders
	Discounts Discounts
	Auth      Authenticator
}

// Handler serves the /api routes.
type Handler struct {
	deps         Deps
	imageBaseURL string
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	return &Handler{deps: deps, imageBaseURL: cfg.ImageBaseURL}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("POST /api/discounts/validate", h.ValidateDiscount)

	mux.HandleFunc("GET /api/cart", h.authenticated(h.ListCart))
	mux.HandleFunc("GET /api/cart/count", h.authenticated(h.CountCart))
	mux.HandleFunc("POST /api/cart", h.authenticated(h.AddToCart))
	mux.HandleFunc("PUT /api/cart/{id}", h.authenticated(h.SetCartQuantity))
	mux.HandleFunc("DELETE /api/cart/{id}", h.authenticated(h.RemoveFromCart))
	mux.HandleFunc("DELETE /api/cart", h.authenticated(h.ClearCart))
	mux.HandleFunc("POST /api/cart/summary", h.authenticated(h.CartSummary))

	mux.HandleFunc("POST /api/checkout", h.authenticated(h.Checkout))

	mux.HandleFunc("GET /api/orders", h.authenticated(h.ListOrders))
	mux.HandleFunc("GET /api/orders/{id}", h.authenticated(h.GetOrder))
}
