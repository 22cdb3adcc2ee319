package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// HeaderAPIKey carries the caller's raw API key.
const HeaderAPIKey = "api_key"

var errUnauthorized = errors.New("unauthorized")

// authenticated resolves the api_key header to a user id and stores it in
// the request context for next.
func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := h.deps.Auth.Authenticate(ctx, r.Header.Get(HeaderAPIKey))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, r, errors.Wrap(err, "authenticate"))
				return
			}
			writeError(w, r, errUnauthorized)
			return
		}

		ctx = auth.WithUserID(ctx, info.UserID)
		ctx = zctx.With(ctx, zap.String("user_id", info.UserID))
		next(w, r.WithContext(ctx))
	}
}
