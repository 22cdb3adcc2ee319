//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestProducts_List(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != seededProduct {
		t.Fatalf("expected %d products, got %d", seededProduct, len(products))
	}
	for _, p := range products {
		if p.ID == "" || p.Name == "" {
			t.Errorf("product missing id or name: %+v", p)
		}
		if p.Price <= 0 {
			t.Errorf("product %s: non-positive price %v", p.ID, p.Price)
		}
	}
}

func TestProducts_Get(t *testing.T) {
	p := getProduct(t, "2")
	if p.Name != "Smart Watch" {
		t.Errorf("name: got %q, want %q", p.Name, "Smart Watch")
	}
	if p.Price != 299.99 {
		t.Errorf("price: got %v, want 299.99", p.Price)
	}
}

func TestProducts_NotFound(t *testing.T) {
	resp := doGet(t, "/api/products/does-not-exist")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)

	if body := decodeJSON[errorResponse](t, resp); body.Reason != "not_found" {
		t.Errorf("reason: got %q, want not_found", body.Reason)
	}
}

func TestDiscounts_Validate(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantAmount float64
	}{
		{"percentage", map[string]any{"code": "welcome10", "orderTotal": 120}, http.StatusOK, 12},
		{"fixed", map[string]any{"code": "SAVE20", "orderTotal": "150.00"}, http.StatusOK, 20},
		{"below minimum", map[string]any{"code": "SAVE20", "orderTotal": 99.99}, http.StatusUnprocessableEntity, 0},
		{"unknown code", map[string]any{"code": "NOPE", "orderTotal": 100}, http.StatusNotFound, 0},
		{"missing total", map[string]any{"code": "SAVE20"}, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := send(http.MethodPost, "/api/discounts/validate", tt.body, "")
			if err != nil {
				t.Fatalf("do request: %v", err)
			}
			defer resp.Body.Close()
			expectStatus(t, resp, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}

			body := decodeJSON[struct {
				Valid          bool    `json:"valid"`
				Code           string  `json:"code"`
				DiscountAmount float64 `json:"discountAmount"`
			}](t, resp)
			if !body.Valid {
				t.Error("expected valid=true")
			}
			if body.DiscountAmount != tt.wantAmount {
				t.Errorf("discountAmount: got %v, want %v", body.DiscountAmount, tt.wantAmount)
			}
		})
	}
}
