package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.deps.Products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				h.encodeProduct(e, p)
			}
		})
	})
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, product.ErrNotFound) {
			err = errors.Wrap(err, "get product")
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

// encodeProduct writes a product. Relative image paths are prefixed with the
// configured base URL.
func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	image := p.ImageURL
	if image != "" && !strings.Contains(image, "://") {
		image = h.imageBaseURL + image
	}
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", p.ID)
		strField(e, "name", p.Name)
		strField(e, "description", p.Description)
		strField(e, "category", p.Category)
		strField(e, "imageUrl", image)
		moneyField(e, "price", p.Price)
		intField(e, "stock", p.Stock)
		e.Field("featured", func(e *jx.Encoder) { e.Bool(p.Featured) })
	})
}
