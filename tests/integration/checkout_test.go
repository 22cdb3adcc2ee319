//go:build integration

package integration

import (
	"math"
	"net/http"
	"sync"
	"testing"
)

func TestCheckout_WithDiscount(t *testing.T) {
	before := getProduct(t, "1")

	resp := doAuth(t, http.MethodPost, "/api/checkout", checkoutRequest{
		Items:        []lineRequest{{ProductID: "1", Quantity: 1}},
		DiscountCode: "welcome10",
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	o := decodeJSON[orderResponse](t, resp)
	if o.Status != "PROCESSING" {
		t.Errorf("status: got %q, want PROCESSING", o.Status)
	}
	if o.Subtotal != 199.99 || o.DiscountAmount != 20 || o.Total != 179.99 {
		t.Errorf("totals: got subtotal=%v discount=%v total=%v", o.Subtotal, o.DiscountAmount, o.Total)
	}
	if o.DiscountCode != "WELCOME10" {
		t.Errorf("discountCode: got %q, want WELCOME10", o.DiscountCode)
	}
	if o.Currency != "USD" {
		t.Errorf("currency: got %q", o.Currency)
	}

	if after := getProduct(t, "1"); after.Stock != before.Stock-1 {
		t.Errorf("stock: got %d, want %d", after.Stock, before.Stock-1)
	}

	got := doGet(t, "/api/orders/"+o.ID)
	defer got.Body.Close()
	expectStatus(t, got, http.StatusOK)
	if fetched := decodeJSON[orderResponse](t, got); fetched.Total != o.Total || len(fetched.Items) != 1 {
		t.Errorf("fetched order mismatch: %+v", fetched)
	}
}

func TestCheckout_ClientPriceIgnored(t *testing.T) {
	cheap := 0.01
	resp := doAuth(t, http.MethodPost, "/api/checkout", checkoutRequest{
		Items: []lineRequest{{ProductID: "7", Quantity: 1, Price: &cheap}},
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	if o := decodeJSON[orderResponse](t, resp); o.Total != 129.99 {
		t.Errorf("total: got %v, want 129.99", o.Total)
	}
}

func TestCheckout_FromCart(t *testing.T) {
	clearCart(t)
	t.Cleanup(func() { clearCart(t) })
	addToCart(t, "6", 2)

	resp := doAuth(t, http.MethodPost, "/api/checkout", checkoutRequest{})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	if o := decodeJSON[orderResponse](t, resp); o.Total != 179.98 {
		t.Errorf("total: got %v, want 179.98", o.Total)
	}

	cart := doAuth(t, http.MethodGet, "/api/cart", nil)
	defer cart.Body.Close()
	if body := decodeJSON[cartResponse](t, cart); len(body.Items) != 0 {
		t.Errorf("cart not cleared: %d lines", len(body.Items))
	}
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	before := getProduct(t, "3")
	req := checkoutRequest{Items: []lineRequest{{ProductID: "3", Quantity: 1}}}

	first := doAuth(t, http.MethodPost, "/api/checkout", req, "Idempotency-Key", "replay-test-key")
	defer first.Body.Close()
	expectStatus(t, first, http.StatusCreated)
	placed := decodeJSON[orderResponse](t, first)

	second := doAuth(t, http.MethodPost, "/api/checkout", req, "Idempotency-Key", "replay-test-key")
	defer second.Body.Close()
	expectStatus(t, second, http.StatusOK)
	replayed := decodeJSON[orderResponse](t, second)

	if replayed.ID != placed.ID {
		t.Errorf("replay returned order %s, want %s", replayed.ID, placed.ID)
	}
	if !replayed.Replayed {
		t.Error("expected replayed=true")
	}
	if after := getProduct(t, "3"); after.Stock != before.Stock-1 {
		t.Errorf("stock decremented more than once: %d -> %d", before.Stock, after.Stock)
	}
}

func TestCheckout_Rejections(t *testing.T) {
	clearCart(t)

	tests := []struct {
		name       string
		req        checkoutRequest
		wantStatus int
		wantReason string
	}{
		{"empty cart", checkoutRequest{}, http.StatusBadRequest, "validation"},
		{"unknown product", checkoutRequest{Items: []lineRequest{{ProductID: "nope", Quantity: 1}}}, http.StatusNotFound, "not_found"},
		{"insufficient stock", checkoutRequest{Items: []lineRequest{{ProductID: "8", Quantity: 10000}}}, http.StatusConflict, "insufficient_stock"},
		{"unknown discount", checkoutRequest{Items: []lineRequest{{ProductID: "8", Quantity: 1}}, DiscountCode: "BOGUS"}, http.StatusNotFound, "not_found"},
		{"below discount minimum", checkoutRequest{Items: []lineRequest{{ProductID: "5", Quantity: 1}}, DiscountCode: "SAVE20"}, http.StatusUnprocessableEntity, "discount_rejected"},
	}
	before := getProduct(t, "8")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doAuth(t, http.MethodPost, "/api/checkout", tt.req)
			defer resp.Body.Close()
			expectStatus(t, resp, tt.wantStatus)

			if body := decodeJSON[errorResponse](t, resp); body.Reason != tt.wantReason {
				t.Errorf("reason: got %q, want %q", body.Reason, tt.wantReason)
			}
		})
	}
	// Rejected checkouts leave stock untouched.
	if after := getProduct(t, "8"); after.Stock != before.Stock {
		t.Errorf("stock changed: %d -> %d", before.Stock, after.Stock)
	}
}

// TestCheckout_LastUnits races more buyers than there are units and checks
// that stock is never oversold.
func TestCheckout_LastUnits(t *testing.T) {
	const buyers = 30
	stock := getProduct(t, "4").Stock
	if stock >= buyers {
		t.Fatalf("product 4 has %d units, need fewer than %d", stock, buyers)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := send(http.MethodPost, "/api/checkout", checkoutRequest{
				Items: []lineRequest{{ProductID: "4", Quantity: 1}},
			}, testAPIKey)
			if err != nil {
				t.Errorf("checkout: %v", err)
				return
			}
			resp.Body.Close()

			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[http.StatusCreated] != stock {
		t.Errorf("created: got %d, want %d (statuses %v)", statuses[http.StatusCreated], stock, statuses)
	}
	if statuses[http.StatusConflict] != buyers-stock {
		t.Errorf("conflicts: got %d, want %d (statuses %v)", statuses[http.StatusConflict], buyers-stock, statuses)
	}
	if after := getProduct(t, "4"); after.Stock != 0 {
		t.Errorf("remaining stock: got %d, want 0", after.Stock)
	}
}

func TestOrders_List(t *testing.T) {
	resp := doAuth(t, http.MethodPost, "/api/checkout", checkoutRequest{
		Items: []lineRequest{{ProductID: "2", Quantity: 1}},
	})
	expectStatus(t, resp, http.StatusCreated)
	placed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	list := doGet(t, "/api/orders")
	defer list.Body.Close()
	expectStatus(t, list, http.StatusOK)

	orders := decodeJSON[[]orderResponse](t, list)
	if len(orders) == 0 || orders[0].ID != placed.ID {
		t.Fatalf("expected newest order %s first, got %d orders", placed.ID, len(orders))
	}
	var sum float64
	for _, it := range orders[0].Items {
		sum += it.Price * float64(it.Quantity)
	}
	if math.Abs(sum-orders[0].Subtotal) > 0.001 {
		t.Errorf("item sum %v does not match subtotal %v", sum, orders[0].Subtotal)
	}

	missing := doGet(t, "/api/orders/00000000-0000-0000-0000-000000000000")
	defer missing.Body.Close()
	expectStatus(t, missing, http.StatusNotFound)
}
