// Package stripepay implements the payment provider interfaces on top of
// Stripe checkout sessions.
package stripepay

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/hexshop/checkout/internal/domain/payment"
)

var (
	_ payment.Provider      = (*Provider)(nil)
	_ payment.EventVerifier = (*Provider)(nil)
)

// Provider talks to the Stripe API and verifies Stripe-signed webhooks.
type Provider struct {
	sc            *client.API
	webhookSecret string
}

// New creates a Provider with the given API secret key and webhook signing
// secret.
func New(secretKey, webhookSecret string) *Provider {
	return &Provider{
		sc:            client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// CreateSession creates a Stripe checkout session in payment mode. When the
// request carries a discount, a one-time amount-off coupon is created for
// exactly that amount and attached to the session.
func (p *Provider) CreateSession(ctx context.Context, req payment.CheckoutRequest) (*payment.SessionRef, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, len(req.Items))
	for i, it := range req.Items {
		lineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
				UnitAmount: stripe.Int64(it.UnitAmountMinor),
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	if req.DiscountMinorUnits > 0 {
		couponID, err := p.createCoupon(ctx, req.DiscountMinorUnits, req.Currency)
		if err != nil {
			return nil, err
		}
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(couponID)},
		}
	}

	sess, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create stripe checkout session")
	}
	return &payment.SessionRef{ID: sess.ID, URL: sess.URL}, nil
}

// createCoupon creates a single-use amount-off coupon.
func (p *Provider) createCoupon(ctx context.Context, amountMinor int64, currency string) (string, error) {
	params := &stripe.CouponParams{
		AmountOff:      stripe.Int64(amountMinor),
		Currency:       stripe.String(currency),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
	}
	params.Context = ctx

	c, err := p.sc.Coupons.New(params)
	if err != nil {
		return "", errors.Wrap(err, "create stripe coupon")
	}
	return c.ID, nil
}

// GetSession retrieves a checkout session with its payment intent expanded.
func (p *Provider) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := p.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, errors.Wrapf(err, "get stripe session %s", id)
	}
	s := mapSession(sess)
	return &s, nil
}

// ListLineItems returns the session's line items in submission order.
func (p *Provider) ListLineItems(ctx context.Context, id string) ([]payment.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(id),
	}
	params.Context = ctx

	var items []payment.LineItem
	iter := p.sc.CheckoutSessions.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()
		item := payment.LineItem{Quantity: int(li.Quantity)}
		if li.Price != nil {
			item.UnitAmountMinor = li.Price.UnitAmount
		}
		items = append(items, item)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "list line items for session %s", id)
	}
	return items, nil
}

// VerifyEvent checks the Stripe-Signature header against the raw body and
// decodes the event. Verification happens before any parsing of the payload.
// API version mismatches are tolerated so a dashboard pinned to a newer API
// version than this SDK still delivers.
func (p *Provider) VerifyEvent(payload []byte, signatureHeader string) (*payment.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Wrap(err, "construct event")
	}

	out := &payment.Event{Type: payment.EventType(event.Type)}
	if out.Type != payment.EventCheckoutCompleted {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, errors.Wrap(err, "decode checkout session")
	}
	out.Session = mapSession(&sess)
	return out, nil
}

func mapSession(sess *stripe.CheckoutSession) payment.Session {
	out := payment.Session{
		ID:               sess.ID,
		Paid:             sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotalMinor: sess.AmountTotal,
		Currency:         string(sess.Currency),
		Metadata:         sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.TransactionID = sess.PaymentIntent.ID
	}
	if sess.CustomerDetails != nil {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	return out
}
