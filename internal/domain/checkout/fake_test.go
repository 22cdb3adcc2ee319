package checkout

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// memState is everything a checkout can touch.
type memState struct {
	products  map[string]product.Product
	discounts map[string]discount.Code
	carts     map[string][]cart.Item
	orders    map[string]order.Order
	requests  map[string]string
}

func (s memState) clone() memState {
	out := memState{
		products:  maps.Clone(s.products),
		discounts: maps.Clone(s.discounts),
		carts:     make(map[string][]cart.Item, len(s.carts)),
		orders:    make(map[string]order.Order, len(s.orders)),
		requests:  maps.Clone(s.requests),
	}
	for k, v := range s.carts {
		out.carts[k] = slices.Clone(v)
	}
	for k, v := range s.orders {
		v.Items = slices.Clone(v.Items)
		out.orders[k] = v
	}
	return out
}

// memStore is an in-memory backend. InTx serializes transactions and
// restores a snapshot when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   memState

	// failClear makes the cart clear step fail inside the transaction.
	failClear bool
	txCalls   int
}

func newMemStore() *memStore {
	return &memStore{st: memState{
		products:  make(map[string]product.Product),
		discounts: make(map[string]discount.Code),
		carts:     make(map[string][]cart.Item),
		orders:    make(map[string]order.Order),
		requests:  make(map[string]string),
	}}
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

func (m *memStore) addProduct(id string, price string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.products[id] = product.Product{ID: id, Name: "Product " + id, Price: decimal.RequireFromString(price), Stock: stock}
}

func (m *memStore) addDiscount(c discount.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.discounts[c.Code] = c
}

func (m *memStore) addToCart(userID, productID string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.carts[userID] = append(m.st.carts[userID], cart.Item{
		ID:        userID + "-" + productID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
	})
}

func (m *memStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.products[id].Stock
}

func (m *memStore) used(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.discounts[code].UsedCount
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.orders)
}

func (m *memStore) deps() Deps {
	return Deps{
		Products:  memProducts{m},
		Discounts: memDiscounts{m},
		Carts:     memCarts{m},
		Orders:    memOrders{m},
		Requests:  memRequests{m},
		Tx:        m,
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	m.txCalls++
	before := m.st.clone()
	m.mu.Unlock()

	err := fn(ctx, Stores{
		Inventory: memInventory{m},
		Discounts: memDiscounts{m},
		Orders:    memOrders{m},
		Carts:     memCarts{m},
		Requests:  memRequests{m},
	})
	if err != nil {
		m.mu.Lock()
		m.st = before
		m.mu.Unlock()
	}
	return err
}

type memProducts struct{ m *memStore }

func (p memProducts) List(context.Context) ([]product.Product, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return slices.Collect(maps.Values(p.m.st.products)), nil
}

func (p memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	v, ok := p.m.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &v, nil
}

func (p memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if v, ok := p.m.st.products[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type memInventory struct{ m *memStore }

func (i memInventory) TryDecrement(_ context.Context, id string, qty int) (decimal.Decimal, error) {
	if !inventory.ValidQuantity(qty) {
		return decimal.Zero, errors.Wrapf(inventory.ErrInvalidQuantity, "decrement %q by %d", id, qty)
	}
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	p, ok := i.m.st.products[id]
	if !ok || p.Stock < qty {
		return decimal.Zero, &inventory.InsufficientStockError{ProductID: id, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	i.m.st.products[id] = p
	return p.Price, nil
}

func (i memInventory) Restock(_ context.Context, id string, qty int) error {
	if !inventory.ValidQuantity(qty) {
		return errors.Wrapf(inventory.ErrInvalidQuantity, "restock %q by %d", id, qty)
	}
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	p, ok := i.m.st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += qty
	i.m.st.products[id] = p
	return nil
}

type memDiscounts struct{ m *memStore }

func (d memDiscounts) FindByCode(_ context.Context, code string) (*discount.Code, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	c, ok := d.m.st.discounts[discount.Normalize(code)]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return &c, nil
}

// ListCodes ignores since: the fake keeps no creation times.
func (d memDiscounts) ListCodes(context.Context, time.Time) ([]string, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return slices.Collect(maps.Keys(d.m.st.discounts)), nil
}

func (d memDiscounts) TryIncrementUsage(_ context.Context, code string, now time.Time) (*discount.Code, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	c, ok := d.m.st.discounts[code]
	if !ok || !c.Active ||
		(c.ExpiresAt != nil && c.ExpiresAt.Before(now)) ||
		(c.MaxUses != nil && c.UsedCount >= *c.MaxUses) {
		return nil, discount.ErrUsageUnavailable
	}
	before := c
	c.UsedCount++
	d.m.st.discounts[code] = c
	return &before, nil
}

func (d memDiscounts) ReleaseUsage(_ context.Context, code string) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	c := d.m.st.discounts[code]
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	d.m.st.discounts[code] = c
	return nil
}

type memCarts struct{ m *memStore }

func (c memCarts) List(_ context.Context, userID string) ([]cart.Item, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return slices.Clone(c.m.st.carts[userID]), nil
}

func (c memCarts) Clear(_ context.Context, userID string) error {
	if c.m.failClear {
		return errors.New("connection reset")
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	delete(c.m.st.carts, userID)
	return nil
}

type memOrders struct{ m *memStore }

func (o memOrders) Create(_ context.Context, v *order.Order) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	cp := *v
	cp.Items = slices.Clone(v.Items)
	o.m.st.orders[v.ID] = cp
	return nil
}

func (o memOrders) GetByID(_ context.Context, userID, id string) (*order.Order, error) {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	v, ok := o.m.st.orders[id]
	if !ok || v.UserID != userID {
		return nil, order.ErrNotFound
	}
	return &v, nil
}

func (o memOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	var out []order.Order
	for _, v := range o.m.st.orders {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (o memOrders) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	v, ok := o.m.st.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if v.Status != from {
		return order.ErrStatusConflict
	}
	v.Status = to
	o.m.st.orders[id] = v
	return nil
}

type memRequests struct{ m *memStore }

func (r memRequests) Claim(_ context.Context, userID, key, orderID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	k := userID + "|" + key
	if _, ok := r.m.st.requests[k]; ok {
		return ErrDuplicateRequest
	}
	r.m.st.requests[k] = orderID
	return nil
}

func (r memRequests) Lookup(_ context.Context, userID, key string) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	id, ok := r.m.st.requests[userID+"|"+key]
	if !ok {
		return "", ErrRequestNotFound
	}
	return id, nil
}
