package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appreservation "github.com/man-1982/commerce-shop/internal/application/reservation"
	appstock "github.com/man-1982/commerce-shop/internal/application/stock"
	domcart "github.com/man-1982/commerce-shop/internal/domain/cart"
	domproduct "github.com/man-1982/commerce-shop/internal/domain/product"
	busimpl "github.com/man-1982/commerce-shop/internal/infrastructure/eventbus"
	"github.com/man-1982/commerce-shop/internal/infrastructure/id"
	"github.com/man-1982/commerce-shop/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	carts := memory.NewCartRepository()
	products := memory.NewProductRepository()

	bus := busimpl.NewBus(busimpl.Config{
		QueueSize:      64,
		FanoutLimit:    4,
		HandlerTimeout: 2 * time.Second,
	}, nil)
	bus.Start(context.Background())
	t.Cleanup(func() { bus.Stop(context.Background()) })

	adjuster := appstock.NewAdjuster(products, 500*time.Millisecond, nil)
	appstock.NewWorker(bus, adjuster, nil).Start()

	ids := id.NewUUIDGenerator()
	reservations := appreservation.NewService(carts, products, ids, bus, 500*time.Millisecond, nil)
	catalog := appstock.NewCatalog(products, ids, 500*time.Millisecond)

	srv := httptest.NewServer(NewHandler(reservations, catalog, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	fields := map[string]json.RawMessage{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&fields)
	}
	return resp, fields
}

func fieldString(t *testing.T, fields map[string]json.RawMessage, key string) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		t.Fatalf("field %q not a string: %v", key, err)
	}
	return s
}

func fieldInt(t *testing.T, fields map[string]json.RawMessage, key string) int64 {
	t.Helper()
	var n int64
	if err := json.Unmarshal(fields[key], &n); err != nil {
		t.Fatalf("field %q not a number: %v", key, err)
	}
	return n
}

func createProduct(t *testing.T, srv *httptest.Server, price string, stock int64) string {
	t.Helper()
	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/products", map[string]any{
		"title": "widget",
		"sku":   "SKU-1",
		"price": price,
		"stock": stock,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d", resp.StatusCode)
	}
	return fieldString(t, fields, "pid")
}

func waitForProductStock(t *testing.T, srv *httptest.Server, pid string, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last int64
	for time.Now().Before(deadline) {
		resp, fields := doJSON(t, http.MethodGet, srv.URL+"/products/"+pid, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get product: expected 200, got %d", resp.StatusCode)
		}
		last = fieldInt(t, fields, "stock")
		if last == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stock for %s never reached %d, last seen %d", pid, want, last)
}

func TestCartLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	pid := createProduct(t, srv, "19.99", 5)

	// Create reserves stock asynchronously.
	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/cart", map[string]any{
		"uid": "u1", "pid": pid, "quantity": 3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create entry: expected 201, got %d", resp.StatusCode)
	}
	cid := fieldString(t, fields, "cid")
	if got := fieldString(t, fields, "amount"); got != "59.97" {
		t.Fatalf("expected amount 59.97, got %s", got)
	}
	waitForProductStock(t, srv, pid, 2)

	// A second active entry for the same (uid, pid) conflicts.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/cart", map[string]any{
		"uid": "u1", "pid": pid, "quantity": 1,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate entry: expected 409, got %d", resp.StatusCode)
	}

	// Remove part of the quantity.
	resp, fields = doJSON(t, http.MethodDelete, srv.URL+"/cart/"+cid+"/item", map[string]any{
		"pid": pid, "quantity": 1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove quantity: expected 200, got %d", resp.StatusCode)
	}
	if got := fieldInt(t, fields, "quantity"); got != 2 {
		t.Fatalf("expected quantity 2, got %d", got)
	}
	waitForProductStock(t, srv, pid, 3)

	// Read the entry back.
	resp, fields = doJSON(t, http.MethodGet, srv.URL+"/cart/"+cid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get entry: expected 200, got %d", resp.StatusCode)
	}
	if got := fieldString(t, fields, "status"); got != "active" {
		t.Fatalf("expected active status, got %s", got)
	}

	// Close freezes the entry, stock stays reserved.
	resp, fields = doJSON(t, http.MethodPatch, srv.URL+"/cart/"+cid+"/close", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close entry: expected 200, got %d", resp.StatusCode)
	}
	if got := fieldString(t, fields, "status"); got != "closed" {
		t.Fatalf("expected closed status, got %s", got)
	}
	waitForProductStock(t, srv, pid, 3)
}

func TestDeleteEntryReleasesStockOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	pid := createProduct(t, srv, "10.00", 5)

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/cart", map[string]any{
		"uid": "u1", "pid": pid, "quantity": 4,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create entry: expected 201, got %d", resp.StatusCode)
	}
	cid := fieldString(t, fields, "cid")
	waitForProductStock(t, srv, pid, 1)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/cart/"+cid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete entry: expected 200, got %d", resp.StatusCode)
	}
	waitForProductStock(t, srv, pid, 5)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/cart/"+cid, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted entry: expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateEntryErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	pid := createProduct(t, srv, "10.00", 5)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown product", map[string]any{"uid": "u1", "pid": "ghost", "quantity": 1}, http.StatusBadRequest},
		{"zero quantity", map[string]any{"uid": "u1", "pid": pid, "quantity": 0}, http.StatusBadRequest},
		{"missing uid", map[string]any{"pid": pid, "quantity": 1}, http.StatusBadRequest},
		{"unknown field", map[string]any{"uid": "u1", "pid": pid, "quantity": 1, "bogus": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/cart", tc.body)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/cart/no-such-entry", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing entry: expected 404, got %d", resp.StatusCode)
	}
}

func TestProductCRUDOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	pid := createProduct(t, srv, "10.00", 5)

	resp, fields := doJSON(t, http.MethodPatch, srv.URL+"/products/"+pid, map[string]any{
		"price": "12.50",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update product: expected 200, got %d", resp.StatusCode)
	}
	if got := fieldString(t, fields, "price"); got != "12.5" {
		t.Fatalf("expected price 12.5, got %s", got)
	}
	if got := fieldString(t, fields, "title"); got != "widget" {
		t.Fatalf("patch must keep title, got %s", got)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/products/"+pid, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete product: expected 204, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/products/"+pid, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted product: expected 404, got %d", resp.StatusCode)
	}
}

// conflictedCartRepository fails every conditional write, so retrying
// mutations exhaust their deadline.
type conflictedCartRepository struct {
	*memory.CartRepository
}

func (r *conflictedCartRepository) Update(context.Context, *domcart.Entry) error {
	return domcart.ErrVersionConflict
}

func TestWriteTimeoutMapsToServiceUnavailable(t *testing.T) {
	carts := &conflictedCartRepository{CartRepository: memory.NewCartRepository()}
	products := memory.NewProductRepository()

	p, err := domproduct.New("p1", "widget", "SKU-1", decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("product.New failed: %v", err)
	}
	if err := products.Insert(context.Background(), p); err != nil {
		t.Fatalf("seed product failed: %v", err)
	}
	entry, err := domcart.NewEntry("c1", "u1", "p1", 1, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if err := carts.Insert(context.Background(), entry); err != nil {
		t.Fatalf("insert entry failed: %v", err)
	}

	ids := id.NewUUIDGenerator()
	reservations := appreservation.NewService(carts, products, ids, nil, 50*time.Millisecond, nil)
	catalog := appstock.NewCatalog(products, ids, 50*time.Millisecond)

	srv := httptest.NewServer(NewHandler(reservations, catalog, nil).Router())
	t.Cleanup(srv.Close)

	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/cart/add", map[string]any{
		"uid": "u1", "pid": "p1", "quantity": 1,
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("exhausted retry deadline: expected 503, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
