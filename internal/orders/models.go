package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         string          `json:"id"`
	SupplierID string          `json:"supplierId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	DeletedAt  *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Deleted reports whether the product has been soft-deleted. A deleted
// product stays addressable by id for historical orders but is excluded
// from marketplace listings and cannot be ordered.
func (p Product) Deleted() bool { return p.DeletedAt != nil }

type Order struct {
	ID         string          `json:"id"`
	ResellerID string          `json:"resellerId"`
	SupplierID string          `json:"supplierId"` // snapshot taken at creation time
	ProductID  string          `json:"productId"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     Status          `json:"status"`
	TxHash     *string         `json:"txHash"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// CreateOrderInput carries the fields for opening a new order.
type CreateOrderInput struct {
	ResellerID string          `json:"resellerId"`
	SupplierID string          `json:"supplierId"`
	ProductID  string          `json:"productId"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type SupplierSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CompanyName   string `json:"companyName"`
	WalletAddress string `json:"walletAddress"`
}

type ResellerSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StoreName     string `json:"storeName"`
	WalletAddress string `json:"walletAddress"`
}

type ProductSummary struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// OrderView is an order with product and counterparty summaries embedded,
// as returned by the list endpoints (newest first).
type OrderView struct {
	Order
	Product  ProductSummary   `json:"product"`
	Supplier *SupplierSummary `json:"supplier,omitempty"`
	Reseller *ResellerSummary `json:"reseller,omitempty"`
}

// ProductView is a marketplace product with its supplier summary.
type ProductView struct {
	Product
	Supplier SupplierSummary `json:"supplier"`
}
