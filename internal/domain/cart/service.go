package cart

import (
	"context"
	"fmt"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/product"
)

// Service applies cart rules on top of a Repository: quantities stay within
// [1, inventory.MaxQuantity] and lines are soft-checked against live stock.
// The stock check is repeated transactionally at checkout.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// List returns the user's cart lines.
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	items, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return items, nil
}

// Count returns the number of units in the user's cart.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.carts.Count(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count cart: %w", err)
	}
	return n, nil
}

// Add puts quantity units of productID into the cart, merging with an
// existing line.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) (*Item, error) {
	if !inventory.ValidQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	items, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	want := quantity
	for _, it := range items {
		if it.ProductID == productID {
			if it.Quantity > inventory.MaxQuantity-quantity {
				return nil, ErrInvalidQuantity
			}
			want += it.Quantity
			break
		}
	}
	if want > p.Stock {
		return nil, &inventory.InsufficientStockError{ProductID: productID, Requested: want, Available: p.Stock}
	}

	item, err := s.carts.Upsert(ctx, userID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}
	return item, nil
}

// SetQuantity replaces the quantity of one of the user's lines.
func (s *Service) SetQuantity(ctx context.Context, userID, itemID string, quantity int) (*Item, error) {
	if !inventory.ValidQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	current, err := s.carts.Get(ctx, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	if quantity > current.Stock {
		return nil, &inventory.InsufficientStockError{
			ProductID: current.ProductID,
			Requested: quantity,
			Available: current.Stock,
		}
	}

	item, err := s.carts.SetQuantity(ctx, userID, itemID, quantity)
	if err != nil {
		return nil, fmt.Errorf("set cart quantity: %w", err)
	}
	return item, nil
}

// Remove deletes one of the user's lines.
func (s *Service) Remove(ctx context.Context, userID, itemID string) error {
	if err := s.carts.Remove(ctx, userID, itemID); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.carts.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
