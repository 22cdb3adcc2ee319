package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/checkout"
)

const (
	claimCheckoutRequestSQL = `INSERT INTO checkout_requests (user_id, idempotency_key, order_id)
		VALUES ($1, $2, $3)`

	lookupCheckoutRequestSQL = `SELECT order_id::text FROM checkout_requests
		WHERE user_id = $1 AND idempotency_key = $2`
)

var _ checkout.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore implements checkout.IdempotencyStore on the
// checkout_requests table. Its primary key arbitrates concurrent duplicates.
type IdempotencyStore struct {
	db DBTX
}

// NewIdempotencyStore returns an IdempotencyStore that runs on db.
func NewIdempotencyStore(db DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Claim binds key to orderID.
func (s *IdempotencyStore) Claim(ctx context.Context, userID, key, orderID string) error {
	if _, err := s.db.Exec(ctx, claimCheckoutRequestSQL, userID, key, orderID); err != nil {
		if isUniqueViolation(err) {
			return checkout.ErrDuplicateRequest
		}
		return fmt.Errorf("claiming checkout request: %w", err)
	}
	return nil
}

// Lookup returns the order id bound to key.
func (s *IdempotencyStore) Lookup(ctx context.Context, userID, key string) (string, error) {
	var orderID string
	err := s.db.QueryRow(ctx, lookupCheckoutRequestSQL, userID, key).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", checkout.ErrRequestNotFound
		}
		return "", fmt.Errorf("looking up checkout request: %w", err)
	}
	return orderID, nil
}
