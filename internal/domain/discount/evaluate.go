package discount

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of a successful evaluation.
type Result struct {
	Code   string
	Type   Type
	Value  decimal.Decimal
	Amount decimal.Decimal
}

// Evaluate computes the discount that rec grants on orderTotal at time now.
//
// Checks run in a fixed order: missing record, inactive, expired, usage
// exhausted, minimum amount. The amount is rounded to cents and never
// exceeds orderTotal. Evaluate has no side effects.
func Evaluate(rec *Code, orderTotal decimal.Decimal, now time.Time) (*Result, error) {
	if rec == nil {
		return nil, ErrNotFound
	}
	if !rec.Active {
		return nil, ErrInactive
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(now) {
		return nil, ErrExpired
	}
	if rec.MaxUses != nil && rec.UsedCount >= *rec.MaxUses {
		return nil, ErrExhausted
	}
	if rec.MinimumAmount != nil && orderTotal.LessThan(*rec.MinimumAmount) {
		return nil, &MinimumNotMetError{Minimum: *rec.MinimumAmount}
	}

	var amount decimal.Decimal
	switch rec.Type {
	case Percentage:
		amount = orderTotal.Mul(rec.Value).Div(hundred)
	case FixedAmount:
		amount = rec.Value
	default:
		return nil, errors.Errorf("unsupported discount type: %q", rec.Type)
	}

	amount = clamp(amount.Round(2), orderTotal)

	return &Result{
		Code:   rec.Code,
		Type:   rec.Type,
		Value:  rec.Value,
		Amount: amount,
	}, nil
}

// clamp bounds amount to [0, limit].
func clamp(amount, limit decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if limit.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, limit)
}
