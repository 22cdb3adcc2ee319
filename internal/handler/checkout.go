package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
)

// HeaderIdempotencyKey makes a checkout safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// decodeCheckout reads {items?: [{productId, quantity, price?}], discountCode?}.
// Without items the stored cart is used.
func decodeCheckout(w http.ResponseWriter, r *http.Request) (checkout.Request, error) {
	req := checkout.Request{
		UserID:         auth.UserID(r.Context()),
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "discountCode":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.DiscountCode, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				req.Items = append(req.Items, line)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeLine(d *jx.Decoder) (checkout.Line, error) {
	var l checkout.Line
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "productId":
			l.ProductID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "price":
			price, perr := decodeMoney(d)
			if perr != nil {
				return perr
			}
			l.PriceHint = &price
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

// CartSummary prices the cart and discount without committing anything.
func (h *Handler) CartSummary(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckout(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.deps.Checkouts.Preview(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// Checkout commits the caller's order. A replayed idempotency key returns
// 200 with the original order, a fresh commit 201, and an order whose
// payment failed 402.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckout(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.deps.Checkouts.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	switch {
	case res.Order.Status == order.StatusFailed:
		status = http.StatusPaymentRequired
	case res.Replayed:
		status = http.StatusOK
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeOrder(e, res.Order, func(e *jx.Encoder) {
			e.Field("replayed", func(e *jx.Encoder) { e.Bool(res.Replayed) })
		})
	})
}

func encodeQuote(e *jx.Encoder, q *checkout.Quote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range q.Lines {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "productId", l.ProductID)
						strField(e, "name", l.Name)
						intField(e, "quantity", l.Quantity)
						moneyField(e, "price", l.Price)
						moneyField(e, "lineTotal", l.LineTotal())
					})
				}
			})
		})
		moneyField(e, "subtotal", q.Subtotal)
		if q.DiscountCode != "" {
			strField(e, "discountCode", q.DiscountCode)
		}
		moneyField(e, "discountAmount", q.DiscountAmount)
		moneyField(e, "total", q.Total)
	})
}
