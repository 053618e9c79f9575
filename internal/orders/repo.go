package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{DB: db} }

const orderCols = `id, reseller_id, supplier_id, product_id, quantity, total_price::text, status, tx_hash, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var total string
	err := row.Scan(&o.ID, &o.ResellerID, &o.SupplierID, &o.ProductID,
		&o.Quantity, &total, &o.Status, &o.TxHash, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	tp, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("parse total_price: %w", err)
	}
	o.TotalPrice = tp
	return o, nil
}

// CreateOrder persists a new pending order. The stock check here is
// advisory only (read-then-decide); the authoritative decrement happens
// at settlement under a row lock.
func (r *Repo) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stock int
	err = tx.QueryRow(ctx,
		`SELECT stock FROM products WHERE id=$1 AND deleted_at IS NULL`,
		in.ProductID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("product %s: %w", in.ProductID, ErrNotFound)
	}
	if err != nil {
		return Order{}, err
	}
	if stock < in.Quantity {
		return Order{}, fmt.Errorf("product %s: need %d, have %d: %w",
			in.ProductID, in.Quantity, stock, ErrInsufficientStock)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders(id, reseller_id, supplier_id, product_id, quantity, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		RETURNING `+orderCols,
		uuid.NewString(), in.ResellerID, in.SupplierID, in.ProductID,
		in.Quantity, in.TotalPrice.String(), StatusPending)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return o, err
}

// Settle transitions a pending order to paid and deducts its quantity from
// the product stock in one transaction. Both rows are locked FOR UPDATE, so
// concurrent settlements against the same product serialize on the product
// row and the pending-only guard rules out a double decrement on replay.
// Returns the updated order and the remaining stock.
func (r *Repo) Settle(ctx context.Context, orderID, txHash string) (Order, int, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, 0, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return Order{}, 0, err
	}
	if o.Status != StatusPending {
		return Order{}, 0, fmt.Errorf("order %s is %s: %w", orderID, o.Status, ErrInvalidTransition)
	}

	var stock int
	err = tx.QueryRow(ctx,
		`SELECT stock FROM products WHERE id=$1 FOR UPDATE`, o.ProductID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, 0, fmt.Errorf("product %s: %w", o.ProductID, ErrNotFound)
	}
	if err != nil {
		return Order{}, 0, err
	}
	if stock < o.Quantity {
		// Another order won the race for this stock. Refuse the
		// confirmation; nothing is committed.
		return Order{}, 0, fmt.Errorf("product %s: need %d, have %d: %w",
			o.ProductID, o.Quantity, stock, ErrInsufficientStock)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
		o.ProductID, o.Quantity); err != nil {
		return Order{}, 0, err
	}

	o, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, tx_hash=$3, updated_at=now()
		WHERE id=$1
		RETURNING `+orderCols, orderID, StatusPaid, txHash))
	if err != nil {
		return Order{}, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, 0, err
	}
	return o, stock - o.Quantity, nil
}

// Cancel is the administrative pending -> cancelled edge. It touches no
// stock.
func (r *Repo) Cancel(ctx context.Context, orderID string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return Order{}, fmt.Errorf("order %s is %s: %w", orderID, o.Status, ErrInvalidTransition)
	}

	o, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1
		RETURNING `+orderCols, orderID, StatusCancelled))
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListForReseller returns the reseller's orders newest-first with product
// and supplier summaries embedded. Soft-deleted products still join so
// historical orders keep their snapshot.
func (r *Repo) ListForReseller(ctx context.Context, resellerID string) ([]OrderView, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.reseller_id, o.supplier_id, o.product_id, o.quantity,
		       o.total_price::text, o.status, o.tx_hash, o.created_at, o.updated_at,
		       p.name, p.price::text,
		       s.name, s.company_name, s.wallet_address
		FROM orders o
		JOIN products p ON p.id = o.product_id
		JOIN suppliers s ON s.id = o.supplier_id
		WHERE o.reseller_id = $1
		ORDER BY o.created_at DESC`, resellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderView
	for rows.Next() {
		var v OrderView
		var total, price string
		var sup SupplierSummary
		if err := rows.Scan(&v.ID, &v.ResellerID, &v.SupplierID, &v.ProductID,
			&v.Quantity, &total, &v.Status, &v.TxHash, &v.CreatedAt, &v.UpdatedAt,
			&v.Product.Name, &price,
			&sup.Name, &sup.CompanyName, &sup.WalletAddress); err != nil {
			return nil, err
		}
		if v.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total_price: %w", err)
		}
		if v.Product.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		v.Product.ID = v.ProductID
		sup.ID = v.SupplierID
		v.Supplier = &sup
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListForSupplier returns the supplier's incoming orders newest-first with
// product and reseller summaries embedded.
func (r *Repo) ListForSupplier(ctx context.Context, supplierID string) ([]OrderView, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.reseller_id, o.supplier_id, o.product_id, o.quantity,
		       o.total_price::text, o.status, o.tx_hash, o.created_at, o.updated_at,
		       p.name, p.price::text,
		       re.name, re.store_name, re.wallet_address
		FROM orders o
		JOIN products p ON p.id = o.product_id
		JOIN resellers re ON re.id = o.reseller_id
		WHERE o.supplier_id = $1
		ORDER BY o.created_at DESC`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderView
	for rows.Next() {
		var v OrderView
		var total, price string
		var res ResellerSummary
		if err := rows.Scan(&v.ID, &v.ResellerID, &v.SupplierID, &v.ProductID,
			&v.Quantity, &total, &v.Status, &v.TxHash, &v.CreatedAt, &v.UpdatedAt,
			&v.Product.Name, &price,
			&res.Name, &res.StoreName, &res.WalletAddress); err != nil {
			return nil, err
		}
		if v.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total_price: %w", err)
		}
		if v.Product.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		v.Product.ID = v.ProductID
		res.ID = v.ResellerID
		v.Reseller = &res
		out = append(out, v)
	}
	return out, rows.Err()
}
