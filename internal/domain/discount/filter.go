package discount

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	filterFalsePositiveRate = 0.001

	// catchUpOverlap widens every incremental catch-up window. A code's
	// created_at is its transaction start, so a slow writer can commit a
	// row stamped before the previous catch-up ran.
	catchUpOverlap = time.Minute
)

// generation is one immutable build of the filter.
type generation struct {
	bf *bloom.BloomFilter
	// builtAt is when the query that fed this generation started. Every
	// code committed before builtAt-catchUpOverlap is in bf.
	builtAt time.Time
	size    int
}

// Filter is a negative cache over the set of known codes.
//
// A hit says nothing, the repository stays authoritative. A miss is never
// trusted against a generation older than the question: the filter first
// catches up with codes stored since it was built, so a code inserted by
// another writer is found as soon as it is committed. Concurrent misses
// share one catch-up. Until the first successful Reload every code is
// reported as possibly present.
type Filter struct {
	repo Repository
	gen  atomic.Pointer[generation]
	mu   sync.Mutex // serializes rebuilds
	now  func() time.Time
}

// NewFilter creates an empty Filter that loads codes from repo.
func NewFilter(repo Repository) *Filter {
	return &Filter{repo: repo, now: time.Now}
}

// MayContain reports whether code might be a stored discount code. If the
// catch-up after a miss fails, the code is reported as possibly present.
func (f *Filter) MayContain(ctx context.Context, code string) bool {
	code = Normalize(code)
	asked := f.now()

	g := f.gen.Load()
	if g == nil || g.bf.TestString(code) {
		return true
	}

	g, err := f.catchUp(ctx, asked)
	if err != nil {
		zctx.From(ctx).Warn("Discount filter catch-up failed", zap.Error(err))
		return true
	}
	return g.bf.TestString(code)
}

// Loaded reports whether the filter has been populated at least once.
func (f *Filter) Loaded() bool {
	return f.gen.Load() != nil
}

// Size returns the number of codes in the current generation.
func (f *Filter) Size() int {
	g := f.gen.Load()
	if g == nil {
		return 0
	}
	return g.size
}

// catchUp adds codes stored since the current generation was built. A
// generation built after asked already covers the caller.
func (f *Filter) catchUp(ctx context.Context, asked time.Time) (*generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.gen.Load()
	if !cur.builtAt.Before(asked) {
		return cur, nil
	}

	started := f.now()
	codes, err := f.repo.ListCodes(ctx, cur.builtAt.Add(-catchUpOverlap))
	if err != nil {
		return nil, errors.Wrap(err, "list new codes")
	}

	next := &generation{bf: cur.bf, builtAt: started, size: cur.size}
	for _, c := range codes {
		c = Normalize(c)
		if next.bf.TestString(c) {
			continue
		}
		if next.bf == cur.bf {
			// Readers hold cur.bf without locking.
			next.bf = cur.bf.Copy()
		}
		next.bf.AddString(c)
		next.size++
	}
	f.gen.Store(next)
	return next, nil
}

// Reload rebuilds the filter from every stored code and swaps it in.
func (f *Filter) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	started := f.now()
	codes, err := f.repo.ListCodes(ctx, time.Time{})
	if err != nil {
		return errors.Wrap(err, "list codes")
	}

	n := uint(len(codes))
	if n < 64 {
		n = 64
	}
	bf := bloom.NewWithEstimates(n, filterFalsePositiveRate)
	for _, c := range codes {
		bf.AddString(Normalize(c))
	}

	f.gen.Store(&generation{bf: bf, builtAt: started, size: len(codes)})
	return nil
}

// Run reloads the filter every interval until ctx is done. Full reloads
// bound the false-positive rate that catch-ups erode. Reload failures are
// logged and the previous generation is kept.
func (f *Filter) Run(ctx context.Context, interval time.Duration) error {
	lg := zctx.From(ctx).Named("discount.filter")

	if err := f.Reload(ctx); err != nil {
		lg.Warn("Initial load failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.Reload(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Warn("Reload failed", zap.Error(err))
				continue
			}
			lg.Debug("Reloaded", zap.Int("codes", f.Size()))
		}
	}
}
