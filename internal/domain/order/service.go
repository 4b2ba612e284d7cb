package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/hexshop/checkout/internal/domain/product"
	"github.com/hexshop/checkout/internal/domain/voucher"
)

// MaxQuantity bounds a single order line. It keeps totals far from int64
// overflow and rejects obviously abusive carts.
const MaxQuantity = 1000

var (
	// ErrEmptyItems is returned when a quote request carries no items.
	ErrEmptyItems = errors.New("items required")
	// ErrDiscountMismatch is returned when the caller's claimed discount does
	// not equal the server-validated voucher amount.
	ErrDiscountMismatch = errors.New("claimed discount does not match voucher")
)

// InvalidQuantityError indicates a line item quantity outside [1, MaxQuantity].
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity %d out of range for product %s", e.Quantity, e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// CartItem is a client-submitted order line: product reference and quantity
// only. Prices are never accepted from the client.
type CartItem struct {
	ProductID string
	Quantity  int
}

// QuoteRequest is the input to QuoteOrder.
type QuoteRequest struct {
	Items       []CartItem
	VoucherCode string
	// ClaimedDiscount, when non-nil, is the discount the client believes it
	// gets, in minor units. It must match the server-validated amount.
	ClaimedDiscount *int64
	UserID          string
}

// Quote is the result of a successful QuoteOrder.
type Quote struct {
	Order *Order
	// Digest is returned to the client and must be echoed back at checkout.
	Digest string
}

// Service prices carts into persisted orders. It is the only component that
// computes an order's digest at creation time.
type Service struct {
	products product.Repository
	vouchers voucher.Validator
	orders   Repository

	currency string
	merchant string
}

// NewService creates an order Service. Currency and merchant identity are
// deployment constants bound into every digest.
func NewService(
	products product.Repository,
	vouchers voucher.Validator,
	orders Repository,
	currency, merchant string,
) *Service {
	return &Service{
		products: products,
		vouchers: vouchers,
		orders:   orders,
		currency: currency,
		merchant: merchant,
	}
}

// QuoteOrder resolves authoritative prices for the cart, validates any
// voucher, computes the total and digest, and persists the order atomically.
// It has no side effect on catalog or voucher state.
func (s *Service) QuoteOrder(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Resolve authoritative prices and compute the provisional total.
	items := make([]Item, len(req.Items))
	var total int64
	for i, line := range req.Items {
		if line.Quantity < 1 || line.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: line.ProductID, Quantity: line.Quantity}
		}

		p, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, &ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, errors.Wrapf(err, "get product %s", line.ProductID)
		}

		unitPrice := p.PriceMinorUnits()
		items[i] = Item{
			ProductID:           line.ProductID,
			Quantity:            line.Quantity,
			UnitPriceMinorUnits: unitPrice,
		}
		total += unitPrice * int64(line.Quantity)
	}

	// Validate the voucher and bind its discount. The server-validated value
	// is authoritative; a claimed discount only ever rejects, never overrides.
	var discount int64
	if req.VoucherCode != "" {
		amount, err := s.vouchers.Validate(ctx, req.VoucherCode)
		if err != nil {
			return nil, errors.Wrap(err, "validate voucher")
		}
		discount = amount
	}
	if req.ClaimedDiscount != nil && *req.ClaimedDiscount != discount {
		return nil, ErrDiscountMismatch
	}

	total -= discount
	if total < 0 {
		total = 0
	}

	salt := NewSalt()
	o := &Order{
		ID:                 uuid.New().String(),
		UserID:             req.UserID,
		Currency:           s.currency,
		MerchantIdentity:   s.merchant,
		Salt:               salt,
		Items:              items,
		TotalMinorUnits:    total,
		DiscountMinorUnits: discount,
		VoucherCode:        req.VoucherCode,
		Digest:             Digest(s.currency, s.merchant, salt, items, total),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return &Quote{Order: o, Digest: o.Digest}, nil
}
