package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ValidateDiscount previews {code, orderTotal}. Usage counters are not
// touched.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	var (
		code     string
		total    decimal.Decimal
		hasTotal bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "code":
			code, err = d.Str()
		case "orderTotal":
			total, err = decodeMoney(d)
			hasTotal = err == nil
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if code == "" || !hasTotal {
		writeError(w, r, &malformedError{err: errMissingField("code and orderTotal")})
		return
	}

	res, err := h.deps.Discounts.Validate(r.Context(), code, total)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
			strField(e, "code", res.Code)
			strField(e, "discountType", string(res.Type))
			e.Field("discountValue", func(e *jx.Encoder) { e.Num(jx.Num(res.Value.String())) })
			moneyField(e, "discountAmount", res.Amount)
			moneyField(e, "finalTotal", total.Sub(res.Amount))
		})
	})
}
