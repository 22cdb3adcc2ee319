package discount

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// Percentage takes Value percent off the order subtotal.
	Percentage Type = "PERCENTAGE"
	// FixedAmount takes Value off the order subtotal, capped at the subtotal.
	FixedAmount Type = "FIXED_AMOUNT"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == Percentage || t == FixedAmount
}

// Rejection reasons, in the order Evaluate checks them.
var (
	ErrNotFound      = errors.New("invalid discount code")
	ErrInactive      = errors.New("discount code is inactive")
	ErrExpired       = errors.New("discount code has expired")
	ErrExhausted     = errors.New("discount code usage limit reached")
	ErrMinimumNotMet = errors.New("minimum amount not met")
)

// ErrUsageUnavailable is returned by a Ledger when the conditional usage
// increment matched no row: the code was valid when priced but is no longer
// redeemable (a concurrent order took the last slot, or it expired or was
// deactivated in between).
var ErrUsageUnavailable = errors.New("discount code no longer available")

// MinimumNotMetError carries the minimum order amount the subtotal failed to reach.
type MinimumNotMetError struct {
	Minimum decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("minimum order amount of $%s required", e.Minimum.StringFixed(2))
}

func (e *MinimumNotMetError) Unwrap() error { return ErrMinimumNotMet }

// IsRejection reports whether err is one of the evaluation rejection reasons.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrExhausted) ||
		errors.Is(err, ErrMinimumNotMet)
}

// Code is a stored discount code together with its usage counter.
type Code struct {
	Code          string
	Description   string
	Type          Type
	Value         decimal.Decimal
	MinimumAmount *decimal.Decimal
	MaxUses       *int
	UsedCount     int
	Active        bool
	ExpiresAt     *time.Time
}

// Normalize returns the canonical (upper case, trimmed) form of a code.
// Codes are matched case-insensitively everywhere.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides read access to discount codes.
type Repository interface {
	// FindByCode looks a code up case-insensitively. Returns ErrNotFound
	// when it does not exist.
	FindByCode(ctx context.Context, code string) (*Code, error)
	// ListCodes returns the codes created at or after since. The zero time
	// lists every code.
	ListCodes(ctx context.Context, since time.Time) ([]string, error)
}

// Ledger owns the per-code usage counters.
type Ledger interface {
	// TryIncrementUsage atomically consumes one usage slot if the code is
	// active, not expired at now, and below MaxUses. It returns the record as
	// it was before the increment, or ErrUsageUnavailable.
	TryIncrementUsage(ctx context.Context, code string, now time.Time) (*Code, error)
	// ReleaseUsage gives one slot back. Used only by compensation.
	ReleaseUsage(ctx context.Context, code string) error
}
