package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Orders.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i], nil)
			}
		})
	})
}

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.deps.Orders.Get(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, nil) })
}

// encodeOrder writes o; extra, when set, appends fields to the object.
func encodeOrder(e *jx.Encoder, o *order.Order, extra func(e *jx.Encoder)) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		strField(e, "status", string(o.Status))
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "productId", it.ProductID)
						intField(e, "quantity", it.Quantity)
						moneyField(e, "price", it.Price)
						moneyField(e, "lineTotal", it.LineTotal())
					})
				}
			})
		})
		moneyField(e, "subtotal", o.Subtotal)
		if o.DiscountCode != "" {
			strField(e, "discountCode", o.DiscountCode)
		}
		moneyField(e, "discountAmount", o.DiscountAmount)
		moneyField(e, "total", o.Total)
		strField(e, "currency", o.Currency)
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		if extra != nil {
			extra(e)
		}
	})
}
