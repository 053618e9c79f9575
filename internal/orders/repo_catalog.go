package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productCols = `id, supplier_id, name, price::text, stock, deleted_at, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var price string
	err := row.Scan(&p.ID, &p.SupplierID, &p.Name, &price, &p.Stock,
		&p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("parse price: %w", err)
	}
	return p, nil
}

// GetProduct returns the product by id, soft-deleted included so that
// historical orders stay resolvable. Callers decide whether Deleted()
// matters for them.
func (r *Repo) GetProduct(ctx context.Context, productID string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id=$1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	return p, err
}

// ListProducts is the marketplace view: active products only, with the
// supplier summary embedded.
func (r *Repo) ListProducts(ctx context.Context) ([]ProductView, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.supplier_id, p.name, p.price::text, p.stock,
		       p.deleted_at, p.created_at, p.updated_at,
		       s.name, s.company_name, s.wallet_address
		FROM products p
		JOIN suppliers s ON s.id = p.supplier_id
		WHERE p.deleted_at IS NULL
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductView
	for rows.Next() {
		var v ProductView
		var price string
		if err := rows.Scan(&v.ID, &v.SupplierID, &v.Name, &price, &v.Stock,
			&v.DeletedAt, &v.CreatedAt, &v.UpdatedAt,
			&v.Supplier.Name, &v.Supplier.CompanyName, &v.Supplier.WalletAddress); err != nil {
			return nil, err
		}
		if v.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		v.Supplier.ID = v.SupplierID
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetProductView returns a single product with its supplier summary.
// Unlike ListProducts it does not filter soft-deleted rows.
func (r *Repo) GetProductView(ctx context.Context, productID string) (ProductView, error) {
	var v ProductView
	var price string
	err := r.DB.QueryRow(ctx, `
		SELECT p.id, p.supplier_id, p.name, p.price::text, p.stock,
		       p.deleted_at, p.created_at, p.updated_at,
		       s.name, s.company_name, s.wallet_address
		FROM products p
		JOIN suppliers s ON s.id = p.supplier_id
		WHERE p.id = $1`, productID).
		Scan(&v.ID, &v.SupplierID, &v.Name, &price, &v.Stock,
			&v.DeletedAt, &v.CreatedAt, &v.UpdatedAt,
			&v.Supplier.Name, &v.Supplier.CompanyName, &v.Supplier.WalletAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductView{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return ProductView{}, err
	}
	if v.Price, err = decimal.NewFromString(price); err != nil {
		return ProductView{}, fmt.Errorf("parse price: %w", err)
	}
	v.Supplier.ID = v.SupplierID
	return v, nil
}
