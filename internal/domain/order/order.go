package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an order identifier does not exist.
var ErrNotFound = errors.New("order not found")

// Order is a server-computed price quote that may later be paid. All prices
// are integer minor units. Orders are immutable after creation; settlement is
// signalled by the existence of a Transaction, never by mutating the order.
type Order struct {
	ID string
	// UserID identifies the authenticated purchaser; empty for guest checkout.
	UserID   string
	Currency string
	// MerchantIdentity is the fixed identity of the selling party for this
	// deployment. Stored per order so the digest stays verifiable even if the
	// deployment identity later changes.
	MerchantIdentity string
	// Salt is a per-order random value. Never reused across orders.
	Salt  string
	Items []Item
	// TotalMinorUnits = max(0, sum(quantity*unitPrice) - DiscountMinorUnits).
	TotalMinorUnits    int64
	DiscountMinorUnits int64
	VoucherCode        string
	// Digest binds currency, merchant identity, salt, the ordered items and
	// the total together. Computed once at creation and only ever
	// independently recomputed elsewhere for comparison.
	Digest    string
	CreatedAt time.Time
}

// Item is a single order line. UnitPriceMinorUnits is resolved server-side at
// quote time and is authoritative; client-supplied prices are never stored.
type Item struct {
	ProductID           string `json:"product_id"`
	Quantity            int    `json:"quantity"`
	UnitPriceMinorUnits int64  `json:"unit_price"`
}

// Transaction records a confirmed settlement. Its existence is the sole
// signal that an order is paid.
type Transaction struct {
	OrderID string
	// ProviderTransactionID is the idempotency key: a duplicate webhook
	// delivery for the same provider transaction must not create a second row.
	ProviderTransactionID string
	AmountMinorUnits      int64
	Currency              string
	CustomerEmail         string
	CreatedAt             time.Time
}

// Repository defines persistence for orders and their transactions.
type Repository interface {
	// Create persists the order header and all items atomically.
	Create(ctx context.Context, o *Order) error
	// GetByID loads an order with its items in the exact order they were
	// created. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*Order, error)
	// CreateTransaction inserts a settlement record. The insert is idempotent
	// on ProviderTransactionID: it reports false with no error when an equal
	// transaction was already recorded.
	CreateTransaction(ctx context.Context, t *Transaction) (created bool, err error)
	// TransactionByOrderID returns the settlement for an order, or ErrNotFound.
	TransactionByOrderID(ctx context.Context, orderID string) (*Transaction, error)
	// ListRecentPaid returns the most recent settled orders for a user.
	ListRecentPaid(ctx context.Context, userID string, limit int) ([]Order, error)
}
