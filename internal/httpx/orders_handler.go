package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dropmart/go-chain-settlement/internal/chain"
	"github.com/dropmart/go-chain-settlement/internal/orders"
	"github.com/dropmart/go-chain-settlement/internal/redisx"
)

// Coordinator is the settlement write path.
type Coordinator interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error)
	ConfirmPayment(ctx context.Context, orderID, txHash string) (orders.Order, error)
	CancelOrder(ctx context.Context, orderID string) (orders.Order, error)
}

// Reader serves the query endpoints.
type Reader interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	ListForReseller(ctx context.Context, resellerID string) ([]orders.OrderView, error)
	ListForSupplier(ctx context.Context, supplierID string) ([]orders.OrderView, error)
	ListProducts(ctx context.Context) ([]orders.ProductView, error)
	GetProductView(ctx context.Context, productID string) (orders.ProductView, error)
}

type OrdersHandler struct {
	Coord Coordinator
	Reads Reader
	Redis *redis.Client // optional read cache, nil disables
	Chain chain.Gateway

	sf singleflight.Group
}

type CreateOrderReq struct {
	ResellerID string          `json:"resellerId"`
	SupplierID string          `json:"supplierId"`
	ProductID  string          `json:"productId"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type ConfirmPaymentReq struct {
	TxHash string `json:"txHash"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/{id}/confirm", h.confirmPayment)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/resellers/{id}/orders", h.listResellerOrders)
	r.Get("/suppliers/{id}/orders", h.listSupplierOrders)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/readyz", h.ready)
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var code int
	var kind string
	switch {
	case errors.Is(err, orders.ErrNotFound):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrInvalidTransition):
		code, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrInsufficientStock):
		code, kind = http.StatusBadRequest, "insufficient_stock"
	case errors.Is(err, orders.ErrValidation):
		code, kind = http.StatusBadRequest, "validation_error"
	default:
		code, kind = http.StatusInternalServerError, "internal"
	}
	writeJSON(w, code, apiError{Error: kind, Message: err.Error()})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "validation_error", Message: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Coord.CreateOrder(ctx, orders.CreateOrderInput{
		ResellerID: req.ResellerID,
		SupplierID: req.SupplierID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		TotalPrice: req.TotalPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req ConfirmPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "validation_error", Message: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Coord.ConfirmPayment(ctx, orderID, req.TxHash)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheOrder(ctx, o)
	// Product stock changed, drop the stale detail view.
	if h.Redis != nil {
		_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyProduct, o.ProductID)).Err()
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Coord.CancelOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrder, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Reads.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listResellerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Reads.ListForReseller(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []orders.OrderView{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listSupplierOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Reads.ListForSupplier(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []orders.OrderView{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Reads.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []orders.ProductView{}
	}
	writeJSON(w, http.StatusOK, out)
}

// getProduct reads through a redis cache; singleflight collapses
// concurrent misses for the same product into one DB query.
func (h *OrdersHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err, _ := h.sf.Do(productID, func() (any, error) {
		key := fmt.Sprintf(redisx.KeyProduct, productID)
		if h.Redis != nil {
			if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
				return json.RawMessage(s), nil
			}
		}
		p, err := h.Reads.GetProductView(ctx, productID)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if h.Redis != nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLProductCache).Err()
		}
		return json.RawMessage(b), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(v.(json.RawMessage))
}

func (h *OrdersHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	block, err := h.Chain.BlockNumber(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "chain": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "chainBlock": block})
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrder, o.ID), b, redisx.TTLOrderCache).Err()
}
