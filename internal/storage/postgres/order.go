package postgres

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hexshop/checkout/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, currency, merchant_identity, salt, total_price, discount, voucher_code, digest)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertOrderItemSQL = `INSERT INTO order_items
		(order_id, position, product_id, quantity, unit_price)
	VALUES ($1, $2, $3, $4, $5)`

	getOrderSQL = `SELECT id, user_id, currency, merchant_identity, salt,
		total_price, discount, voucher_code, digest, created_at
	FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT product_id, quantity, unit_price
	FROM order_items WHERE order_id = $1 ORDER BY position`

	insertTransactionSQL = `INSERT INTO transactions
		(order_id, provider_transaction_id, amount, currency, customer_email)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (provider_transaction_id) DO NOTHING`

	getTransactionSQL = `SELECT order_id, provider_transaction_id, amount, currency, customer_email, created_at
	FROM transactions WHERE order_id = $1`

	listRecentPaidSQL = `SELECT o.id, o.user_id, o.currency, o.merchant_identity, o.salt,
		o.total_price, o.discount, o.voucher_code, o.digest, o.created_at
	FROM orders o
	WHERE o.user_id = $1
	  AND EXISTS (SELECT 1 FROM transactions t WHERE t.order_id = o.id)
	ORDER BY o.created_at DESC
	LIMIT $2`
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header and all line items in a single
// transaction. Item positions record the submission order, which the digest
// depends on.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, nullString(o.UserID), o.Currency, o.MerchantIdentity, o.Salt,
		o.TotalMinorUnits, o.DiscountMinorUnits, o.VoucherCode, o.Digest,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(insertOrderItemSQL, o.ID, i, it.ProductID, it.Quantity, it.UnitPriceMinorUnits)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "insert items for order %q", o.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// GetByID loads an order header and its items in creation order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o      order.Order
		userID sql.NullString
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &userID, &o.Currency, &o.MerchantIdentity, &o.Salt,
		&o.TotalMinorUnits, &o.DiscountMinorUnits, &o.VoucherCode, &o.Digest, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o.UserID = userID.String

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get items for order %q", id)
	}
	defer rows.Close()

	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPriceMinorUnits); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "get items for order %q", id)
	}
	return &o, nil
}

// CreateTransaction inserts a settlement record. The unique constraint on
// provider_transaction_id makes duplicate deliveries race safely: the loser
// sees zero rows affected and reports created=false.
func (r *OrderRepository) CreateTransaction(ctx context.Context, t *order.Transaction) (bool, error) {
	tag, err := r.pool.Exec(ctx, insertTransactionSQL,
		t.OrderID, t.ProviderTransactionID, t.AmountMinorUnits, t.Currency, t.CustomerEmail,
	)
	if err != nil {
		return false, errors.Wrapf(err, "insert transaction for order %q", t.OrderID)
	}
	return tag.RowsAffected() > 0, nil
}

// TransactionByOrderID returns the settlement for an order, or
// order.ErrNotFound when the order has none.
func (r *OrderRepository) TransactionByOrderID(ctx context.Context, orderID string) (*order.Transaction, error) {
	var t order.Transaction
	err := r.pool.QueryRow(ctx, getTransactionSQL, orderID).Scan(
		&t.OrderID, &t.ProviderTransactionID, &t.AmountMinorUnits, &t.Currency, &t.CustomerEmail, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get transaction for order %q", orderID)
	}
	return &t, nil
}

// ListRecentPaid returns the user's most recently settled orders, headers
// only.
func (r *OrderRepository) ListRecentPaid(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listRecentPaidSQL, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent paid orders")
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		var (
			o   order.Order
			uid sql.NullString
		)
		if err := rows.Scan(&o.ID, &uid, &o.Currency, &o.MerchantIdentity, &o.Salt,
			&o.TotalMinorUnits, &o.DiscountMinorUnits, &o.VoucherCode, &o.Digest, &o.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		o.UserID = uid.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list recent paid orders")
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
