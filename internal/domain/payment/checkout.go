package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/hexshop/checkout/internal/domain/order"
	"github.com/hexshop/checkout/internal/domain/product"
)

// CheckoutConfig holds the deployment constants the checkout service binds
// into sessions and digests.
type CheckoutConfig struct {
	Currency         string
	MerchantIdentity string
	SuccessURL       string
	CancelURL        string
}

// CheckoutService turns a previously quoted order into a provider checkout
// session, and answers settlement verification polls.
type CheckoutService struct {
	orders   order.Repository
	products product.Repository
	provider Provider
	cfg      CheckoutConfig
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(
	orders order.Repository,
	products product.Repository,
	provider Provider,
	cfg CheckoutConfig,
) *CheckoutService {
	return &CheckoutService{
		orders:   orders,
		products: products,
		provider: provider,
		cfg:      cfg,
	}
}

// CheckoutResult is the outcome of CreateSession: either a free-order
// short-circuit or a provider session to redirect to.
type CheckoutResult struct {
	Free      bool
	SessionID string
	URL       string
}

// CreateSession validates the supplied digest against the stored order and
// either settles a zero-cost order immediately or creates a provider session.
//
// Line items are re-priced fresh from the catalog rather than taken from the
// stored order, so catalog drift between quote and checkout surfaces as a
// reconciliation failure instead of charging a stale price. The session
// metadata carries the order id, salt, and ordered product ids — not prices;
// the provider computes its own totals from the line items it was given.
func (s *CheckoutService) CreateSession(ctx context.Context, orderID, suppliedDigest string) (*CheckoutResult, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "load order")
	}

	// Guard against replay with a stale or forged digest: the client must
	// present exactly what the quote returned.
	if order.Digest(o.Currency, o.MerchantIdentity, o.Salt, o.Items, o.TotalMinorUnits) != suppliedDigest {
		return nil, ErrDigestMismatch
	}

	// Fully discounted orders never reach the provider.
	if o.TotalMinorUnits == 0 {
		if _, err := s.orders.CreateTransaction(ctx, &order.Transaction{
			OrderID:               o.ID,
			ProviderTransactionID: "free:" + o.ID,
			AmountMinorUnits:      0,
			Currency:              o.Currency,
		}); err != nil {
			return nil, errors.Wrap(err, "record free-order transaction")
		}
		return &CheckoutResult{Free: true}, nil
	}

	items := make([]CheckoutItem, len(o.Items))
	pids := make([]string, len(o.Items))
	for i, it := range o.Items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve product %s", it.ProductID)
		}
		items[i] = CheckoutItem{
			Name:            p.Name,
			UnitAmountMinor: p.PriceMinorUnits(),
			Quantity:        it.Quantity,
		}
		pids[i] = it.ProductID
	}

	ref, err := s.provider.CreateSession(ctx, CheckoutRequest{
		Currency:           o.Currency,
		Items:              items,
		DiscountMinorUnits: o.DiscountMinorUnits,
		Metadata: map[string]string{
			MetaOrderID: o.ID,
			MetaSalt:    o.Salt,
			MetaItems:   encodeItemOrder(pids),
		},
		ClientReferenceID: o.ID,
		SuccessURL:        s.cfg.SuccessURL,
		CancelURL:         s.cfg.CancelURL,
	})
	if err != nil {
		return nil, errors.Wrap(&ProviderError{Err: err}, "create checkout session")
	}

	return &CheckoutResult{SessionID: ref.ID, URL: ref.URL}, nil
}

// Verify reports whether a session is settled. It requires both the
// provider's paid status and a locally recorded transaction for the order:
// the provider's word alone does not prove digest reconciliation happened.
func (s *CheckoutService) Verify(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return false, errors.Wrap(&ProviderError{Err: err}, "get session")
	}
	if !sess.Paid {
		return false, nil
	}

	orderID := sess.Metadata[MetaOrderID]
	if orderID == "" {
		return false, nil
	}

	if _, err := s.orders.TransactionByOrderID(ctx, orderID); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "load transaction")
	}
	return true, nil
}

// encodeItemOrder encodes the ordered product-id list for session metadata.
func encodeItemOrder(pids []string) string {
	var e jx.Encoder
	e.ArrStart()
	for _, pid := range pids {
		e.Str(pid)
	}
	e.ArrEnd()
	return string(e.Bytes())
}

// decodeItemOrder is the inverse of encodeItemOrder.
func decodeItemOrder(raw string) ([]string, error) {
	var pids []string
	d := jx.DecodeStr(raw)
	if err := d.Arr(func(d *jx.Decoder) error {
		pid, err := d.Str()
		if err != nil {
			return err
		}
		pids = append(pids, pid)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode item order metadata")
	}
	return pids, nil
}
