package redisx

import "time"

const (
	// Cache of an order's wire representation: order:{order_id}
	KeyOrder = "order:%s"

	// Cache of a product detail view: product:{product_id}
	KeyProduct = "product:%s"
)

var (
	TTLOrderCache   = 5 * time.Minute
	TTLProductCache = 1 * time.Minute
)
