package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/discount"
)

const (
	discountColumns = `code, description, discount_type, discount_value, minimum_amount,
		max_uses, used_count, active, expires_at`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discount_codes WHERE code = UPPER($1)`

	listDiscountCodesSQL = `SELECT code FROM discount_codes WHERE created_at >= $1 ORDER BY code`

	// used_count - 1 reports the counter as Evaluate expects to see it:
	// before this redemption.
	incrementDiscountUsageSQL = `UPDATE discount_codes SET used_count = used_count + 1
		WHERE code = UPPER($1)
			AND active
			AND (expires_at IS NULL OR expires_at >= $2)
			AND (max_uses IS NULL OR used_count < max_uses)
		RETURNING code, description, discount_type, discount_value, minimum_amount,
			max_uses, used_count - 1, active, expires_at`

	releaseDiscountUsageSQL = `UPDATE discount_codes SET used_count = GREATEST(used_count - 1, 0)
		WHERE code = UPPER($1)`

	upsertDiscountSQL = `INSERT INTO discount_codes
			(code, description, discount_type, discount_value, minimum_amount, max_uses, active, expires_at)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			minimum_amount = EXCLUDED.minimum_amount,
			max_uses = EXCLUDED.max_uses,
			active = EXCLUDED.active,
			expires_at = EXCLUDED.expires_at`
)

var (
	_ discount.Repository = (*DiscountRepository)(nil)
	_ discount.Ledger     = (*DiscountRepository)(nil)
)

// DiscountRepository implements discount.Repository and discount.Ledger
// backed by PostgreSQL.
type DiscountRepository struct {
	db DBTX
}

// NewDiscountRepository returns a DiscountRepository that runs on db.
func NewDiscountRepository(db DBTX) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// FindByCode looks up a discount code case-insensitively.
// Returns discount.ErrNotFound when no such code exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := r.db.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount %q: %w", code, err)
	}
	return &c, nil
}

// ListCodes returns the codes created at or after since.
func (r *DiscountRepository) ListCodes(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, listDiscountCodesSQL, since)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// TryIncrementUsage consumes one usage slot in a single conditional UPDATE.
func (r *DiscountRepository) TryIncrementUsage(ctx context.Context, code string, now time.Time) (*discount.Code, error) {
	rows, err := r.db.Query(ctx, incrementDiscountUsageSQL, code, now)
	if err != nil {
		return nil, fmt.Errorf("incrementing usage of %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrUsageUnavailable
		}
		return nil, fmt.Errorf("incrementing usage of %q: %w", code, err)
	}
	return &c, nil
}

// ReleaseUsage gives one usage slot back, never going below zero.
func (r *DiscountRepository) ReleaseUsage(ctx context.Context, code string) error {
	tag, err := r.db.Exec(ctx, releaseDiscountUsageSQL, code)
	if err != nil {
		return fmt.Errorf("releasing usage of %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// Upsert stores c, keeping the usage counter of an existing code.
func (r *DiscountRepository) Upsert(ctx context.Context, c discount.Code) error {
	_, err := r.db.Exec(ctx, upsertDiscountSQL,
		c.Code, c.Description, string(c.Type), c.Value, c.MinimumAmount, c.MaxUses, c.Active, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting discount %q: %w", c.Code, err)
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c            discount.Code
		discountType string
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.Value, &c.MinimumAmount,
		&c.MaxUses, &c.UsedCount, &c.Active, &c.ExpiresAt,
	)
	c.Type = discount.Type(discountType)
	return c, err
}
