package checkout

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/checkout"

// Deps are the collaborators used outside of the commit transaction.
type Deps struct {
	Products  product.Repository
	Discounts discount.Repository
	Carts     CartReader
	Orders    order.Repository
	Requests  IdempotencyStore
	Tx        Transactor
}

// Options tune a Service.
type Options struct {
	// Currency is the ISO 4217 code recorded on orders.
	Currency string
	// CompensateFailedPayments restocks items and releases the discount
	// slot when payment fails after commit.
	CompensateFailedPayments bool
	Payments                 PaymentAuthorizer
	MeterProvider            metric.MeterProvider
	TracerProvider           trace.TracerProvider
}

func (o *Options) setDefaults() {
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.Payments == nil {
		o.Payments = AlwaysAuthorize{}
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
}

// Service runs checkouts.
type Service struct {
	deps  Deps
	opts  Options
	now   func() time.Time
	newID func() string

	tracer   trace.Tracer
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// NewService creates a checkout Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter(instrumentationName)
	attempts, err := meter.Int64Counter("storefront.checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "attempts counter")
	}
	duration, err := meter.Float64Histogram("storefront.checkout.duration",
		metric.WithDescription("Checkout duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &Service{
		deps:     deps,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
		attempts: attempts,
		duration: duration,
	}, nil
}

// attempt tracks the state of one checkout call.
type attempt struct {
	state State
	span  trace.Span
	lg    *zap.Logger
}

func (a *attempt) move(to State) {
	if !a.state.canMoveTo(to) {
		a.lg.DPanic("Invalid checkout state move",
			zap.Stringer("from", a.state),
			zap.Stringer("to", to),
		)
		return
	}
	a.lg.Debug("Checkout state",
		zap.Stringer("from", a.state),
		zap.Stringer("to", to),
	)
	a.span.AddEvent(to.String())
	a.state = to
}

func (a *attempt) abort(err error) error {
	reason := Classify(err)
	a.move(StateAborted)
	a.span.SetAttributes(attribute.String("checkout.reason", string(reason)))
	if reason == ReasonInternal {
		a.span.RecordError(err)
		a.span.SetStatus(codes.Error, "checkout failed")
		a.lg.Error("Checkout aborted", zap.Error(err))
	} else {
		a.lg.Info("Checkout rejected", zap.String("reason", string(reason)), zap.Error(err))
	}
	return err
}

// Preview prices req against live products and discount state. Nothing is
// written.
func (s *Service) Preview(ctx context.Context, req Request) (*Quote, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Preview")
	defer span.End()

	q, err := s.price(ctx, req)
	if err != nil {
		span.SetAttributes(attribute.String("checkout.reason", string(Classify(err))))
		return nil, err
	}
	return q, nil
}

// Checkout converts the request into an order. Either every effect
// (stock, discount usage, order, cart) is committed or none is.
func (s *Service) Checkout(ctx context.Context, req Request) (_ *Result, rerr error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout")
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("user_id", req.UserID))
	a := &attempt{state: StateBuilding, span: span, lg: lg}

	outcome := "committed"
	defer func() {
		if rerr != nil {
			outcome = string(Classify(rerr))
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		s.attempts.Add(ctx, 1, attrs)
		s.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}()

	if req.IdempotencyKey != "" {
		res, err := s.replay(ctx, req)
		switch {
		case err == nil:
			outcome = "replayed"
			lg.Info("Checkout replayed", zap.String("order_id", res.Order.ID))
			return res, nil
		case !errors.Is(err, ErrRequestNotFound):
			return nil, a.abort(errors.Wrap(err, "lookup idempotency key"))
		}
	}

	q, err := s.price(ctx, req)
	if err != nil {
		return nil, a.abort(err)
	}
	a.move(StatePriced)

	a.move(StateCommitting)
	o, err := s.commit(ctx, req, q)
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			a.move(StateAborted)
			res, rErr := s.replay(ctx, req)
			if rErr != nil {
				return nil, errors.Wrap(rErr, "replay concurrent duplicate")
			}
			outcome = "replayed"
			return res, nil
		}
		return nil, a.abort(err)
	}
	a.move(StateCommitted)
	span.SetAttributes(attribute.String("order.id", o.ID))
	lg.Info("Checkout committed",
		zap.String("order_id", o.ID),
		zap.String("total", o.Total.StringFixed(2)),
	)

	s.settle(context.WithoutCancel(ctx), o)
	return &Result{Order: o}, nil
}

// price runs the Building step: validate, merge, price at live prices and
// evaluate the discount.
func (s *Service) price(ctx context.Context, req Request) (*Quote, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}

	lines := req.Items
	if len(lines) == 0 {
		items, err := s.deps.Carts.List(ctx, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "read cart")
		}
		for _, it := range items {
			lines = append(lines, Line{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}
	lines, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.deps.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lg := zctx.From(ctx)
	q := &Quote{Lines: make([]QuotedLine, 0, len(lines)), Subtotal: decimal.Zero}
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		if p.Stock < l.Quantity {
			return nil, &inventory.InsufficientStockError{
				ProductID: p.ID,
				Requested: l.Quantity,
				Available: p.Stock,
			}
		}
		if l.PriceHint != nil && !l.PriceHint.Equal(p.Price) {
			lg.Info("Ignoring client price",
				zap.String("product_id", p.ID),
				zap.String("client_price", l.PriceHint.String()),
				zap.String("price", p.Price.String()),
			)
		}
		ql := QuotedLine{ProductID: p.ID, Name: p.Name, Quantity: l.Quantity, Price: p.Price}
		q.Lines = append(q.Lines, ql)
		q.Subtotal = q.Subtotal.Add(ql.LineTotal())
	}

	q.DiscountAmount = decimal.Zero
	if code := discount.Normalize(req.DiscountCode); code != "" {
		rec, err := s.deps.Discounts.FindByCode(ctx, code)
		if err != nil && !errors.Is(err, discount.ErrNotFound) {
			return nil, errors.Wrap(err, "lookup discount")
		}
		res, err := discount.Evaluate(rec, q.Subtotal, s.now())
		if err != nil {
			return nil, err
		}
		q.DiscountCode = res.Code
		q.DiscountAmount = res.Amount
	}
	q.Total = q.Subtotal.Sub(q.DiscountAmount)

	return q, nil
}

// commit runs the Committing step inside one transaction. Totals are
// recomputed from prices read by the conditional stock updates.
func (s *Service) commit(ctx context.Context, req Request, q *Quote) (*order.Order, error) {
	var placed *order.Order
	err := s.deps.Tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		now := s.now()
		items := make([]order.Item, 0, len(q.Lines))
		subtotal := decimal.Zero

		// Lines are sorted by product id so concurrent checkouts lock rows
		// in the same order.
		for _, l := range q.Lines {
			price, err := st.Inventory.TryDecrement(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return errors.Wrapf(err, "decrement %q", l.ProductID)
			}
			it := order.Item{ProductID: l.ProductID, Quantity: l.Quantity, Price: price}
			items = append(items, it)
			subtotal = subtotal.Add(it.LineTotal())
		}

		amount := decimal.Zero
		if q.DiscountCode != "" {
			rec, err := st.Discounts.TryIncrementUsage(ctx, q.DiscountCode, now)
			if err != nil {
				return errors.Wrap(err, "consume discount")
			}
			res, err := discount.Evaluate(rec, subtotal, now)
			if err != nil {
				return errors.Wrap(err, "re-evaluate discount")
			}
			amount = res.Amount
		}

		o := &order.Order{
			ID:             s.newID(),
			UserID:         req.UserID,
			Items:          items,
			Subtotal:       subtotal,
			DiscountCode:   q.DiscountCode,
			DiscountAmount: amount,
			Total:          subtotal.Sub(amount),
			Currency:       s.opts.Currency,
			Status:         order.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := st.Orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if req.IdempotencyKey != "" {
			if err := st.Requests.Claim(ctx, req.UserID, req.IdempotencyKey, o.ID); err != nil {
				return errors.Wrap(err, "claim idempotency key")
			}
		}
		if err := st.Carts.Clear(ctx, req.UserID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// settle runs after commit: payment, then the forward status move. Nothing
// here can undo the commit.
func (s *Service) settle(ctx context.Context, o *order.Order) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	next := order.StatusProcessing
	payErr := s.opts.Payments.Authorize(ctx, o)
	if payErr != nil {
		lg.Warn("Payment failed after commit", zap.Error(payErr))
		next = order.StatusFailed
	}

	if err := s.deps.Orders.UpdateStatus(ctx, o.ID, order.StatusPending, next); err != nil {
		lg.Error("Update order status",
			zap.String("to", string(next)),
			zap.Error(err),
		)
		return
	}
	o.Status = next
	o.UpdatedAt = s.now()

	if payErr != nil && s.opts.CompensateFailedPayments {
		if err := s.compensate(ctx, o); err != nil {
			lg.Error("Compensation failed", zap.Error(err))
			return
		}
		lg.Info("Compensated failed order")
	}
}

// compensate restocks a failed order and returns its discount slot in a
// new transaction.
func (s *Service) compensate(ctx context.Context, o *order.Order) error {
	return s.deps.Tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		for _, it := range o.Items {
			if err := st.Inventory.Restock(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrapf(err, "restock %q", it.ProductID)
			}
		}
		if o.DiscountCode != "" {
			if err := st.Discounts.ReleaseUsage(ctx, o.DiscountCode); err != nil {
				return errors.Wrap(err, "release discount")
			}
		}
		return nil
	})
}

func (s *Service) replay(ctx context.Context, req Request) (*Result, error) {
	orderID, err := s.deps.Requests.Lookup(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	o, err := s.deps.Orders.GetByID(ctx, req.UserID, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get replayed order")
	}
	return &Result{Order: o, Replayed: true}, nil
}

// mergeLines validates quantities, folds duplicate products into one line
// and sorts by product id.
func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	merged := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if !inventory.ValidQuantity(l.Quantity) {
			return nil, &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		if l.ProductID == "" {
			return nil, &ProductNotFoundError{}
		}
		if i, ok := merged[l.ProductID]; ok {
			if l.Quantity > inventory.MaxQuantity-out[i].Quantity {
				return nil, &InvalidQuantityError{
					ProductID: l.ProductID,
					Quantity:  int(int64(out[i].Quantity) + int64(l.Quantity)),
				}
			}
			out[i].Quantity += l.Quantity
			continue
		}
		merged[l.ProductID] = len(out)
		out = append(out, l)
	}

	slices.SortFunc(out, func(a, b Line) int { return strings.Compare(a.ProductID, b.ProductID) })
	return out, nil
}
