package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING price`

	currentStockSQL = `SELECT stock FROM products WHERE id = $1`

	restockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`
)

var _ inventory.Ledger = (*InventoryLedger)(nil)

// InventoryLedger implements inventory.Ledger with conditional updates on
// the products table.
type InventoryLedger struct {
	db DBTX
}

// NewInventoryLedger returns an InventoryLedger that runs on db.
func NewInventoryLedger(db DBTX) *InventoryLedger {
	return &InventoryLedger{db: db}
}

// TryDecrement takes qty units of productID in one conditional UPDATE and
// returns the price read by that same statement.
func (l *InventoryLedger) TryDecrement(ctx context.Context, productID string, qty int) (decimal.Decimal, error) {
	if !inventory.ValidQuantity(qty) {
		return decimal.Zero, errors.Wrapf(inventory.ErrInvalidQuantity, "decrement %q by %d", productID, qty)
	}

	var price decimal.Decimal
	err := l.db.QueryRow(ctx, decrementStockSQL, productID, qty).Scan(&price)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}

	// Nothing changed. Read what is there only to report it.
	var available int
	if err := l.db.QueryRow(ctx, currentStockSQL, productID).Scan(&available); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("reading stock of %q: %w", productID, err)
	}
	return decimal.Zero, &inventory.InsufficientStockError{
		ProductID: productID,
		Requested: qty,
		Available: available,
	}
}

// Restock returns qty units to productID.
func (l *InventoryLedger) Restock(ctx context.Context, productID string, qty int) error {
	if !inventory.ValidQuantity(qty) {
		return errors.Wrapf(inventory.ErrInvalidQuantity, "restock %q by %d", productID, qty)
	}
	tag, err := l.db.Exec(ctx, restockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("restocking %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}
