package cart

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, _ []string) ([]product.Product, error) {
	return nil, nil
}

type memCart struct {
	products *mockProductRepo
	items    map[string]*Item
}

func (m *memCart) join(it *Item) Item {
	out := *it
	if p, ok := m.products.byID[it.ProductID]; ok {
		out.ProductName = p.Name
		out.Price = p.Price
		out.Stock = p.Stock
	}
	return out
}

func (m *memCart) List(_ context.Context, userID string) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if it.UserID == userID {
			out = append(out, m.join(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *memCart) Get(_ context.Context, userID, itemID string) (*Item, error) {
	it, ok := m.items[itemID]
	if !ok || it.UserID != userID {
		return nil, ErrNotFound
	}
	out := m.join(it)
	return &out, nil
}

func (m *memCart) Upsert(_ context.Context, userID, productID string, delta int) (*Item, error) {
	for _, it := range m.items {
		if it.UserID == userID && it.ProductID == productID {
			if it.Quantity+delta < 1 {
				return nil, ErrInvalidQuantity
			}
			it.Quantity += delta
			out := m.join(it)
			return &out, nil
		}
	}
	if delta < 1 {
		return nil, ErrInvalidQuantity
	}
	it := &Item{ID: uuid.NewString(), UserID: userID, ProductID: productID, Quantity: delta}
	m.items[it.ID] = it
	out := m.join(it)
	return &out, nil
}

func (m *memCart) SetQuantity(_ context.Context, userID, itemID string, quantity int) (*Item, error) {
	it, ok := m.items[itemID]
	if !ok || it.UserID != userID {
		return nil, ErrNotFound
	}
	it.Quantity = quantity
	out := m.join(it)
	return &out, nil
}

func (m *memCart) Remove(_ context.Context, userID, itemID string) error {
	it, ok := m.items[itemID]
	if !ok || it.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, itemID)
	return nil
}

func (m *memCart) Clear(_ context.Context, userID string) error {
	for id, it := range m.items {
		if it.UserID == userID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memCart) Count(_ context.Context, userID string) (int, error) {
	n := 0
	for _, it := range m.items {
		if it.UserID == userID {
			n += it.Quantity
		}
	}
	return n, nil
}

// --- Helpers ---

func newTestService() (*Service, *memCart) {
	products := &mockProductRepo{byID: map[string]*product.Product{
		"1": {ID: "1", Name: "Wireless Headphones", Price: decimal.RequireFromString("199.99"), Stock: 5},
		"2": {ID: "2", Name: "Smart Watch", Price: decimal.RequireFromString("299.99"), Stock: 0},
	}}
	carts := &memCart{products: products, items: make(map[string]*Item)}
	return NewService(carts, products), carts
}

// --- Tests ---

func TestService_Add(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	item, err := svc.Add(ctx, "u1", "1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)

	item, err = svc.Add(ctx, "u1", "1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity, "adding merges into the existing line")

	n, err := svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestService_AddRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		productID string
		qty       int
		check     func(t *testing.T, err error)
	}{
		{
			name:      "zero quantity",
			productID: "1",
			qty:       0,
			check:     func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidQuantity) },
		},
		{
			name:      "quantity above cap",
			productID: "1",
			qty:       math.MaxInt,
			check:     func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidQuantity) },
		},
		{
			name:      "unknown product",
			productID: "999",
			qty:       1,
			check:     func(t *testing.T, err error) { assert.ErrorIs(t, err, product.ErrNotFound) },
		},
		{
			name:      "out of stock",
			productID: "2",
			qty:       1,
			check: func(t *testing.T, err error) {
				var sErr *inventory.InsufficientStockError
				require.ErrorAs(t, err, &sErr)
				assert.Equal(t, "2", sErr.ProductID)
				assert.Equal(t, 0, sErr.Available)
			},
		},
		{
			name:      "more than stock",
			productID: "1",
			qty:       6,
			check:     func(t *testing.T, err error) { assert.ErrorIs(t, err, inventory.ErrInsufficientStock) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, carts := newTestService()
			_, err := svc.Add(ctx, "u1", tt.productID, tt.qty)
			require.Error(t, err)
			tt.check(t, err)
			assert.Empty(t, carts.items, "rejected add must not write")
		})
	}
}

func TestService_AddCountsExistingLineAgainstStock(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Add(ctx, "u1", "1", 4)
	require.NoError(t, err)

	_, err = svc.Add(ctx, "u1", "1", 2)
	var sErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, 6, sErr.Requested)
}

func TestService_SetQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	item, err := svc.Add(ctx, "u1", "1", 1)
	require.NoError(t, err)

	updated, err := svc.SetQuantity(ctx, "u1", item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Quantity)

	_, err = svc.SetQuantity(ctx, "u1", item.ID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.SetQuantity(ctx, "u1", item.ID, inventory.MaxQuantity+1)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.SetQuantity(ctx, "u1", item.ID, 50)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestService_CrossUserAccessIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, carts := newTestService()

	item, err := svc.Add(ctx, "owner", "1", 1)
	require.NoError(t, err)

	_, err = svc.SetQuantity(ctx, "intruder", item.ID, 2)
	require.ErrorIs(t, err, ErrNotFound)

	err = svc.Remove(ctx, "intruder", item.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Clear(ctx, "intruder"))
	assert.Len(t, carts.items, 1)
	assert.Equal(t, 1, carts.items[item.ID].Quantity)
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	a, err := svc.Add(ctx, "u1", "1", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "u1", a.ID))

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.Add(ctx, "u1", "1", 2)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "u1"))

	n, err := svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
