package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
)

// ListCart returns the caller's cart lines with live prices.
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Carts.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(lineTotal(it))
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range items {
						encodeCartItem(e, it)
					}
				})
			})
			moneyField(e, "subtotal", subtotal)
		})
	})
}

// CountCart returns the total number of units in the caller's cart.
func (h *Handler) CountCart(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Carts.Count(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) { intField(e, "count", n) })
	})
}

// AddToCart adds {productId, quantity} to the caller's cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		quantity  int
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "productId":
			productID, err = d.Str()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if productID == "" {
		writeError(w, r, &malformedError{err: errMissingField("productId")})
		return
	}

	item, err := h.deps.Carts.Add(r.Context(), auth.UserID(r.Context()), productID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCartItem(e, *item) })
}

// SetCartQuantity replaces the quantity of one cart line.
func (h *Handler) SetCartQuantity(w http.ResponseWriter, r *http.Request) {
	quantity := 0
	err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "quantity" {
			return d.Skip()
		}
		quantity, err = d.Int()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.deps.Carts.SetQuantity(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartItem(e, *item) })
}

// RemoveFromCart deletes one cart line.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Carts.Remove(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Carts.Clear(r.Context(), auth.UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func lineTotal(it cart.Item) decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func encodeCartItem(e *jx.Encoder, it cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", it.ID)
		strField(e, "productId", it.ProductID)
		strField(e, "productName", it.ProductName)
		intField(e, "quantity", it.Quantity)
		moneyField(e, "price", it.Price)
		intField(e, "stock", it.Stock)
		moneyField(e, "lineTotal", lineTotal(it))
	})
}
