package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropmart/go-chain-settlement/internal/orders"
)

type stubCoord struct {
	createFn  func(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error)
	confirmFn func(ctx context.Context, orderID, txHash string) (orders.Order, error)
	cancelFn  func(ctx context.Context, orderID string) (orders.Order, error)
}

func (s *stubCoord) CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error) {
	return s.createFn(ctx, in)
}

func (s *stubCoord) ConfirmPayment(ctx context.Context, orderID, txHash string) (orders.Order, error) {
	return s.confirmFn(ctx, orderID, txHash)
}

func (s *stubCoord) CancelOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return s.cancelFn(ctx, orderID)
}

type stubReader struct {
	order    orders.Order
	orderErr error
	views    []orders.OrderView
	products []orders.ProductView
	view     orders.ProductView
	viewErr  error
}

func (s *stubReader) GetOrder(context.Context, string) (orders.Order, error) {
	return s.order, s.orderErr
}

func (s *stubReader) ListForReseller(context.Context, string) ([]orders.OrderView, error) {
	return s.views, nil
}

func (s *stubReader) ListForSupplier(context.Context, string) ([]orders.OrderView, error) {
	return s.views, nil
}

func (s *stubReader) ListProducts(context.Context) ([]orders.ProductView, error) {
	return s.products, nil
}

func (s *stubReader) GetProductView(context.Context, string) (orders.ProductView, error) {
	return s.view, s.viewErr
}

type stubChain struct {
	block uint64
	err   error
}

func (s stubChain) VerifyRef(string) error                  { return nil }
func (s stubChain) BlockNumber(context.Context) (uint64, error) { return s.block, s.err }

func sampleOrder(status orders.Status) orders.Order {
	return orders.Order{
		ID:         "order-1",
		ResellerID: "reseller-1",
		SupplierID: "supplier-1",
		ProductID:  "product-1",
		Quantity:   2,
		TotalPrice: decimal.RequireFromString("20.00"),
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func serve(t *testing.T, h *OrdersHandler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter()
	h.Register(router)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func errKind(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	return e.Error
}

func TestCreateOrderHandler(t *testing.T) {
	coord := &stubCoord{
		createFn: func(_ context.Context, in orders.CreateOrderInput) (orders.Order, error) {
			assert.Equal(t, "product-1", in.ProductID)
			assert.Equal(t, 2, in.Quantity)
			assert.True(t, in.TotalPrice.Equal(decimal.RequireFromString("20.00")))
			return sampleOrder(orders.StatusPending), nil
		},
	}
	h := &OrdersHandler{Coord: coord, Reads: &stubReader{}, Chain: stubChain{}}

	rr := serve(t, h, http.MethodPost, "/orders",
		`{"resellerId":"reseller-1","supplierId":"supplier-1","productId":"product-1","quantity":2,"totalPrice":"20.00"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var o orders.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &o))
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Nil(t, o.TxHash)
}

func TestCreateOrderHandlerErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"product missing", fmt.Errorf("product x: %w", orders.ErrNotFound), http.StatusNotFound, "not_found"},
		{"insufficient stock", fmt.Errorf("need 5, have 2: %w", orders.ErrInsufficientStock), http.StatusBadRequest, "insufficient_stock"},
		{"bad input", fmt.Errorf("quantity must be positive: %w", orders.ErrValidation), http.StatusBadRequest, "validation_error"},
		{"storage down", fmt.Errorf("connect refused"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coord := &stubCoord{
				createFn: func(context.Context, orders.CreateOrderInput) (orders.Order, error) {
					return orders.Order{}, tc.err
				},
			}
			h := &OrdersHandler{Coord: coord, Reads: &stubReader{}, Chain: stubChain{}}
			rr := serve(t, h, http.MethodPost, "/orders", `{"resellerId":"r","supplierId":"s","productId":"p","quantity":1,"totalPrice":"1"}`)
			assert.Equal(t, tc.wantCode, rr.Code)
			assert.Equal(t, tc.wantKind, errKind(t, rr))
		})
	}
}

func TestCreateOrderHandlerBadJSON(t *testing.T) {
	h := &OrdersHandler{Coord: &stubCoord{}, Reads: &stubReader{}, Chain: stubChain{}}
	rr := serve(t, h, http.MethodPost, "/orders", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_error", errKind(t, rr))
}

func TestConfirmPaymentHandler(t *testing.T) {
	tx := "0x" + strings.Repeat("ab", 32)
	paid := sampleOrder(orders.StatusPaid)
	paid.TxHash = &tx
	coord := &stubCoord{
		confirmFn: func(_ context.Context, orderID, txHash string) (orders.Order, error) {
			assert.Equal(t, "order-1", orderID)
			assert.Equal(t, tx, txHash)
			return paid, nil
		},
	}
	h := &OrdersHandler{Coord: coord, Reads: &stubReader{}, Chain: stubChain{}}

	rr := serve(t, h, http.MethodPost, "/orders/order-1/confirm", fmt.Sprintf(`{"txHash":"%s"}`, tx))
	require.Equal(t, http.StatusOK, rr.Code)

	var o orders.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &o))
	assert.Equal(t, orders.StatusPaid, o.Status)
	require.NotNil(t, o.TxHash)
	assert.Equal(t, tx, *o.TxHash)
}

func TestConfirmPaymentHandlerErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"order missing", fmt.Errorf("order x: %w", orders.ErrNotFound), http.StatusNotFound, "not_found"},
		{"already paid", fmt.Errorf("order x is paid: %w", orders.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{"stock race lost", fmt.Errorf("need 3, have 1: %w", orders.ErrInsufficientStock), http.StatusBadRequest, "insufficient_stock"},
		{"malformed hash", fmt.Errorf("bad ref: %w", orders.ErrValidation), http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coord := &stubCoord{
				confirmFn: func(context.Context, string, string) (orders.Order, error) {
					return orders.Order{}, tc.err
				},
			}
			h := &OrdersHandler{Coord: coord, Reads: &stubReader{}, Chain: stubChain{}}
			rr := serve(t, h, http.MethodPost, "/orders/order-1/confirm", `{"txHash":"0xabc"}`)
			assert.Equal(t, tc.wantCode, rr.Code)
			assert.Equal(t, tc.wantKind, errKind(t, rr))
		})
	}
}

func TestCancelOrderHandler(t *testing.T) {
	coord := &stubCoord{
		cancelFn: func(_ context.Context, orderID string) (orders.Order, error) {
			return sampleOrder(orders.StatusCancelled), nil
		},
	}
	h := &OrdersHandler{Coord: coord, Reads: &stubReader{}, Chain: stubChain{}}
	rr := serve(t, h, http.MethodPost, "/orders/order-1/cancel", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var o orders.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &o))
	assert.Equal(t, orders.StatusCancelled, o.Status)
}

func TestGetOrderHandler(t *testing.T) {
	h := &OrdersHandler{
		Coord: &stubCoord{},
		Reads: &stubReader{order: sampleOrder(orders.StatusPending)},
		Chain: stubChain{},
	}
	rr := serve(t, h, http.MethodGet, "/orders/order-1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var o orders.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &o))
	assert.Equal(t, "order-1", o.ID)
}

func TestGetOrderHandlerNotFound(t *testing.T) {
	h := &OrdersHandler{
		Coord: &stubCoord{},
		Reads: &stubReader{orderErr: fmt.Errorf("order x: %w", orders.ErrNotFound)},
		Chain: stubChain{},
	}
	rr := serve(t, h, http.MethodGet, "/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListOrdersHandlers(t *testing.T) {
	views := []orders.OrderView{
		{Order: sampleOrder(orders.StatusPaid), Product: orders.ProductSummary{ID: "product-1", Name: "widget"}},
		{Order: sampleOrder(orders.StatusPending), Product: orders.ProductSummary{ID: "product-1", Name: "widget"}},
	}
	h := &OrdersHandler{Coord: &stubCoord{}, Reads: &stubReader{views: views}, Chain: stubChain{}}

	for _, path := range []string{"/resellers/reseller-1/orders", "/suppliers/supplier-1/orders"} {
		rr := serve(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		var out []orders.OrderView
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
		assert.Len(t, out, 2)
	}
}

func TestListOrdersHandlerEmpty(t *testing.T) {
	h := &OrdersHandler{Coord: &stubCoord{}, Reads: &stubReader{}, Chain: stubChain{}}
	rr := serve(t, h, http.MethodGet, "/resellers/reseller-1/orders", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()), "empty list, not null")
}

func TestGetProductHandler(t *testing.T) {
	view := orders.ProductView{
		Product: orders.Product{
			ID: "product-1", SupplierID: "supplier-1", Name: "widget",
			Price: decimal.RequireFromString("10.00"), Stock: 5,
		},
		Supplier: orders.SupplierSummary{ID: "supplier-1", Name: "Acme"},
	}
	h := &OrdersHandler{Coord: &stubCoord{}, Reads: &stubReader{view: view}, Chain: stubChain{}}
	rr := serve(t, h, http.MethodGet, "/products/product-1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var got orders.ProductView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "widget", got.Name)
	assert.Equal(t, "Acme", got.Supplier.Name)
}

func TestGetProductHandlerNotFound(t *testing.T) {
	h := &OrdersHandler{
		Coord: &stubCoord{},
		Reads: &stubReader{viewErr: fmt.Errorf("product x: %w", orders.ErrNotFound)},
		Chain: stubChain{},
	}
	rr := serve(t, h, http.MethodGet, "/products/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReadyHandler(t *testing.T) {
	h := &OrdersHandler{Coord: &stubCoord{}, Reads: &stubReader{}, Chain: stubChain{block: 123}}
	rr := serve(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, float64(123), out["chainBlock"])
}

func TestReadyHandlerChainDown(t *testing.T) {
	h := &OrdersHandler{Coord: &stubCoord{}, Reads: &stubReader{}, Chain: stubChain{err: fmt.Errorf("dial tcp: refused")}}
	rr := serve(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
