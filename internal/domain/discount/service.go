package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Service answers read-only "would this code apply" questions. It never
// touches usage counters.
type Service struct {
	repo   Repository
	filter *Filter
	now    func() time.Time
}

// NewService creates a Service. filter may be nil.
func NewService(repo Repository, filter *Filter) *Service {
	return &Service{repo: repo, filter: filter, now: time.Now}
}

// Lookup fetches a code by its normalized form.
func (s *Service) Lookup(ctx context.Context, code string) (*Code, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrNotFound
	}
	if s.filter != nil && !s.filter.MayContain(ctx, code) {
		return nil, ErrNotFound
	}

	rec, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount")
	}
	return rec, nil
}

// Validate previews the discount code would grant on orderTotal.
func (s *Service) Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*Result, error) {
	rec, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return Evaluate(rec, orderTotal, s.now())
}
