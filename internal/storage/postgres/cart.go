package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	cartItemJoin = `SELECT c.id::text, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at,
			p.name, p.price, p.stock`

	listCartSQL = cartItemJoin + `
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id`

	getCartItemSQL = cartItemJoin + `
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.id = $1 AND c.user_id = $2`

	upsertCartItemSQL = `WITH c AS (
			INSERT INTO cart_items (id, user_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, product_id) DO UPDATE
				SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
			RETURNING *
		) ` + cartItemJoin + `
		FROM c JOIN products p ON p.id = c.product_id`

	setCartQuantitySQL = `WITH c AS (
			UPDATE cart_items SET quantity = $3, updated_at = now()
			WHERE id = $1 AND user_id = $2
			RETURNING *
		) ` + cartItemJoin + `
		FROM c JOIN products p ON p.id = c.product_id`

	removeCartItemSQL = `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`

	countCartSQL = `SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Every
// statement filters on user_id, so another user's line reads as missing.
type CartRepository struct {
	db DBTX
}

// NewCartRepository returns a CartRepository that runs on db.
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// List returns the user's lines, oldest first.
func (r *CartRepository) List(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := r.db.Query(ctx, listCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// Get returns one of the user's lines.
func (r *CartRepository) Get(ctx context.Context, userID, itemID string) (*cart.Item, error) {
	if _, err := uuid.Parse(itemID); err != nil {
		return nil, cart.ErrNotFound
	}

	rows, err := r.db.Query(ctx, getCartItemSQL, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart item %q: %w", itemID, err)
	}
	return collectCartItem(rows, itemID)
}

// Upsert creates a line or adds delta to the existing one.
func (r *CartRepository) Upsert(ctx context.Context, userID, productID string, delta int) (*cart.Item, error) {
	rows, err := r.db.Query(ctx, upsertCartItemSQL, uuid.NewString(), userID, productID, delta)
	if err != nil {
		return nil, fmt.Errorf("upserting cart item: %w", err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	switch {
	case err == nil:
		return &item, nil
	case isCheckViolation(err):
		return nil, cart.ErrInvalidQuantity
	case isForeignKeyViolation(err):
		return nil, product.ErrNotFound
	default:
		return nil, fmt.Errorf("upserting cart item: %w", err)
	}
}

// SetQuantity replaces the quantity of one of the user's lines.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, itemID string, quantity int) (*cart.Item, error) {
	if _, err := uuid.Parse(itemID); err != nil {
		return nil, cart.ErrNotFound
	}

	rows, err := r.db.Query(ctx, setCartQuantitySQL, itemID, userID, quantity)
	if err != nil {
		return nil, fmt.Errorf("setting quantity of %q: %w", itemID, err)
	}
	return collectCartItem(rows, itemID)
}

// Remove deletes one of the user's lines.
func (r *CartRepository) Remove(ctx context.Context, userID, itemID string) error {
	if _, err := uuid.Parse(itemID); err != nil {
		return cart.ErrNotFound
	}

	tag, err := r.db.Exec(ctx, removeCartItemSQL, itemID, userID)
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// Clear deletes all of the user's lines.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

// Count returns the number of units in the user's cart.
func (r *CartRepository) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countCartSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cart of %q: %w", userID, err)
	}
	return n, nil
}

func collectCartItem(rows pgx.Rows, itemID string) (*cart.Item, error) {
	item, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	switch {
	case err == nil:
		return &item, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, cart.ErrNotFound
	case isCheckViolation(err):
		return nil, cart.ErrInvalidQuantity
	default:
		return nil, fmt.Errorf("cart item %q: %w", itemID, err)
	}
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(
		&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt,
		&it.ProductName, &it.Price, &it.Stock,
	)
	return it, err
}
