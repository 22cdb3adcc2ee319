package handler

import (
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// statusFor maps a failure reason to an HTTP status.
func statusFor(reason checkout.Reason) int {
	switch reason {
	case checkout.ReasonValidation:
		return http.StatusBadRequest
	case checkout.ReasonNotFound:
		return http.StatusNotFound
	case checkout.ReasonInsufficientStock, checkout.ReasonDiscountRaceLost:
		return http.StatusConflict
	case checkout.ReasonDiscountRejected:
		return http.StatusUnprocessableEntity
	case checkout.ReasonContended:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage picks the innermost domain error so that wrapping context
// added on the way up does not leak to clients.
func publicMessage(err error) string {
	var (
		minErr   *discount.MinimumNotMetError
		stockErr *inventory.InsufficientStockError
		qtyErr   *checkout.InvalidQuantityError
		pnfErr   *checkout.ProductNotFoundError
		badBody  *malformedError
	)
	switch {
	case errors.As(err, &badBody):
		return badBody.Error()
	case errors.As(err, &minErr):
		return minErr.Error()
	case errors.As(err, &stockErr):
		return stockErr.Error()
	case errors.As(err, &qtyErr):
		return qtyErr.Error()
	case errors.As(err, &pnfErr):
		return pnfErr.Error()
	}
	for _, sentinel := range publicSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

var publicSentinels = []error{
	discount.ErrNotFound,
	discount.ErrInactive,
	discount.ErrExpired,
	discount.ErrExhausted,
	discount.ErrUsageUnavailable,
	checkout.ErrEmptyCart,
	checkout.ErrMissingUser,
	checkout.ErrContended,
}

// writeError renders err as {"code","reason","message"}. Internal errors are
// logged and replaced by an opaque message with the request id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnauthorized) {
		writeJSON(w, http.StatusUnauthorized, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				intField(e, "code", http.StatusUnauthorized)
				strField(e, "message", "Unauthorized")
			})
		})
		return
	}

	reason := checkout.Classify(err)
	if errors.Is(err, errMalformed) {
		reason = checkout.ReasonValidation
	}
	status := statusFor(reason)

	msg := "Internal server error"
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	} else {
		msg = sentence(publicMessage(err))
	}
	requestID := httpmiddleware.RequestIDFromContext(r.Context())
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			intField(e, "code", status)
			strField(e, "reason", string(reason))
			strField(e, "message", msg)
			if requestID != "" && status == http.StatusInternalServerError {
				strField(e, "requestId", requestID)
			}
		})
	})
}

// sentence upper-cases the first letter of msg.
func sentence(msg string) string {
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
