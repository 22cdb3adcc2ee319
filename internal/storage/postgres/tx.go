package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
)

var _ checkout.Transactor = (*Transactor)(nil)

// ParseIsolation maps a configuration name onto a pgx isolation level.
func ParseIsolation(name string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "serializable":
		return pgx.Serializable, nil
	case "repeatable-read", "repeatable_read":
		return pgx.RepeatableRead, nil
	case "read-committed", "read_committed":
		return pgx.ReadCommitted, nil
	default:
		return "", errors.Errorf("unknown isolation level %q", name)
	}
}

// RetryPolicy bounds how long a checkout keeps restarting after
// serialization failures. Under serializable isolation every overlapping
// checkout of the same product row conflicts, so the bound is time rather
// than a small attempt count.
type RetryPolicy struct {
	// Budget is the total time spent across attempts. A sooner request
	// deadline wins.
	Budget time.Duration
	// MaxAttempts caps the number of attempts. Zero leaves only Budget.
	MaxAttempts int
}

// DefaultRetryPolicy retries for up to five seconds.
var DefaultRetryPolicy = RetryPolicy{Budget: 5 * time.Second}

// Transactor runs checkout units in a single PostgreSQL transaction.
// Serialization failures and deadlocks restart the whole unit with
// jittered exponential backoff until the RetryPolicy runs out, after which
// the error matches checkout.ErrContended.
type Transactor struct {
	pool   *pgxpool.Pool
	opts   pgx.TxOptions
	policy RetryPolicy
}

// NewTransactor creates a Transactor. A non-positive budget falls back to
// DefaultRetryPolicy.Budget.
func NewTransactor(pool *pgxpool.Pool, isolation pgx.TxIsoLevel, policy RetryPolicy) *Transactor {
	if policy.Budget <= 0 {
		policy.Budget = DefaultRetryPolicy.Budget
	}
	if policy.MaxAttempts < 0 {
		policy.MaxAttempts = 0
	}
	return &Transactor{
		pool:   pool,
		opts:   pgx.TxOptions{IsoLevel: isolation},
		policy: policy,
	}
}

// InTx implements checkout.Transactor.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, s checkout.Stores) error) error {
	return t.retry(ctx, func() error { return t.runOnce(ctx, fn) })
}

// retry runs attempt until it succeeds, fails permanently, or the policy
// is exhausted.
func (t *Transactor) retry(ctx context.Context, attempt func() error) error {
	lg := zctx.From(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(t.policy.Budget),
	}
	if t.policy.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(t.policy.MaxAttempts)))
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := attempt()
		switch {
		case err == nil:
			return struct{}{}, nil
		case IsRetryable(err):
			lg.Debug("Retrying transaction",
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}, opts...)
	if err != nil && IsRetryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", checkout.ErrContended, attempts, err)
	}
	return err
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context, s checkout.Stores) error) (txErr error) {
	tx, err := t.pool.BeginTx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if txErr != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				txErr = multierr.Append(txErr, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err := fn(ctx, StoresFor(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// StoresFor binds every checkout store to tx.
func StoresFor(tx pgx.Tx) checkout.Stores {
	return checkout.Stores{
		Inventory: NewInventoryLedger(tx),
		Discounts: NewDiscountRepository(tx),
		Orders:    NewOrderRepository(tx),
		Carts:     NewCartRepository(tx),
		Requests:  NewIdempotencyStore(tx),
	}
}
