// Package settlement drives the create -> pay -> confirm order flow. The
// coordinator owns input validation and event publication; the atomicity of
// "stock deducted exactly once per paid order" lives in the Store
// implementation (row locks in Postgres, a mutex in the test fake).
package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/dropmart/go-chain-settlement/internal/chain"
	kafkax "github.com/dropmart/go-chain-settlement/internal/kafka"
	"github.com/dropmart/go-chain-settlement/internal/orders"
)

// Store is the persistence contract the coordinator runs against.
// Settle must apply the pending-only guard, the stock decrement and the
// status transition as one atomic unit per product.
type Store interface {
	GetProduct(ctx context.Context, productID string) (orders.Product, error)
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error)
	Settle(ctx context.Context, orderID, txHash string) (orders.Order, int, error)
	Cancel(ctx context.Context, orderID string) (orders.Order, error)
}

// Publisher matches the async kafka producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Coordinator struct {
	Store           Store
	Chain           chain.Gateway
	CreatedProducer Publisher
	SettledProducer Publisher
	Service         string
}

// CreateOrder validates the request, takes the advisory stock check and
// persists a pending order. Stock is not touched here; two orders racing
// for the same stock are resolved at confirmation time.
func (c *Coordinator) CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error) {
	if in.ResellerID == "" || in.SupplierID == "" || in.ProductID == "" {
		return orders.Order{}, fmt.Errorf("resellerId, supplierId and productId are required: %w", orders.ErrValidation)
	}
	if in.Quantity <= 0 {
		return orders.Order{}, fmt.Errorf("quantity must be positive, got %d: %w", in.Quantity, orders.ErrValidation)
	}
	if !in.TotalPrice.IsPositive() {
		return orders.Order{}, fmt.Errorf("totalPrice must be positive, got %s: %w", in.TotalPrice, orders.ErrValidation)
	}

	p, err := c.Store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return orders.Order{}, err
	}
	if p.Deleted() {
		return orders.Order{}, fmt.Errorf("product %s is no longer listed: %w", in.ProductID, orders.ErrNotFound)
	}
	if p.SupplierID != in.SupplierID {
		return orders.Order{}, fmt.Errorf("product %s does not belong to supplier %s: %w", in.ProductID, in.SupplierID, orders.ErrValidation)
	}
	if p.Stock < in.Quantity {
		return orders.Order{}, fmt.Errorf("product %s: need %d, have %d: %w",
			in.ProductID, in.Quantity, p.Stock, orders.ErrInsufficientStock)
	}
	// Totals are not trusted from the client: they must match the listed
	// price at creation time.
	want := p.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
	if !in.TotalPrice.Equal(want) {
		return orders.Order{}, fmt.Errorf("totalPrice %s does not match %s x %d = %s: %w",
			in.TotalPrice, p.Price, in.Quantity, want, orders.ErrValidation)
	}

	o, err := c.Store.CreateOrder(ctx, in)
	if err != nil {
		return orders.Order{}, err
	}

	c.publish(ctx, c.CreatedProducer, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
		OrderID:    o.ID,
		ResellerID: o.ResellerID,
		SupplierID: o.SupplierID,
		ProductID:  o.ProductID,
		Quantity:   o.Quantity,
		TotalPrice: o.TotalPrice.String(),
	})
	return o, nil
}

// ConfirmPayment accepts an already-obtained transaction reference and
// settles the order: pending-only guard, stock decrement, transition to
// paid. A replayed confirmation fails with ErrInvalidTransition; a lost
// stock race fails with ErrInsufficientStock and leaves everything
// unchanged (no refund orchestration, known limitation).
func (c *Coordinator) ConfirmPayment(ctx context.Context, orderID, txHash string) (orders.Order, error) {
	if txHash == "" {
		return orders.Order{}, fmt.Errorf("txHash is required: %w", orders.ErrValidation)
	}
	if err := c.Chain.VerifyRef(txHash); err != nil {
		return orders.Order{}, fmt.Errorf("%v: %w", err, orders.ErrValidation)
	}

	o, remaining, err := c.Store.Settle(ctx, orderID, txHash)
	if err != nil {
		return orders.Order{}, err
	}

	c.publish(ctx, c.SettledProducer, orders.EventOrderSettled, o.ID, orders.OrderSettledPayload{
		OrderID:        o.ID,
		ProductID:      o.ProductID,
		Quantity:       o.Quantity,
		TxHash:         txHash,
		StockRemaining: remaining,
	})
	return o, nil
}

// CancelOrder is the administrative pending -> cancelled edge.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return c.Store.Cancel(ctx, orderID)
}

func (c *Coordinator) publish(ctx context.Context, p Publisher, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      c.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: orderID,
	}
	body, err := kafkax.Marshal(payload)
	if err != nil {
		log.Printf("settlement: marshal %s payload: %v", eventType, err)
		return
	}
	ev.Payload = body
	value, err := kafkax.Marshal(ev)
	if err != nil {
		log.Printf("settlement: marshal %s envelope: %v", eventType, err)
		return
	}
	p.Publish(orders.PartitionKey(orderID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
