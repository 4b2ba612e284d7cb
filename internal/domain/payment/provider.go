// Package payment implements the checkout session initiator, the webhook
// reconciler, and the settlement verification service on top of a
// provider-neutral payment interface.
package payment

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrDigestMismatch is an integrity violation: the digest supplied by (or
	// derived from) the outside world does not match the stored order. Always
	// fail closed, never repair.
	ErrDigestMismatch = errors.New("digest mismatch")
	// ErrSignatureInvalid is returned for webhook events whose signature does
	// not verify against the shared secret. Such events are never processed.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

// ProviderError marks a failure talking to the payment provider, as opposed
// to a local storage or integrity failure. Callers map it to an upstream
// (502-class) error.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return "payment provider: " + e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// Metadata keys embedded into provider checkout sessions. The provider treats
// them as opaque; the reconciler uses them to reconstruct item order and the
// order's salt. Prices are deliberately never placed in metadata.
const (
	MetaOrderID = "orderId"
	MetaSalt    = "salt"
	MetaItems   = "items"
)

// CheckoutItem is one provider-facing line item, priced fresh from the
// catalog at session-creation time.
type CheckoutItem struct {
	Name            string
	UnitAmountMinor int64
	Quantity        int
}

// CheckoutRequest describes a provider checkout session to create.
type CheckoutRequest struct {
	Currency string
	Items    []CheckoutItem
	// DiscountMinorUnits, when positive, is applied as a one-time
	// provider-side coupon for exactly this amount.
	DiscountMinorUnits int64
	Metadata           map[string]string
	ClientReferenceID  string
	SuccessURL         string
	CancelURL          string
}

// SessionRef identifies a created provider session.
type SessionRef struct {
	ID  string
	URL string
}

// Session is the provider's view of a checkout session.
type Session struct {
	ID               string
	Paid             bool
	AmountTotalMinor int64
	Currency         string
	Metadata         map[string]string
	// TransactionID is the provider's settlement identifier (e.g. the payment
	// intent), used as the idempotency key for transaction recording.
	TransactionID string
	CustomerEmail string
}

// LineItem is one provider-reported line of a session, in the provider's own
// order, which mirrors the order the items were submitted in.
type LineItem struct {
	Quantity        int
	UnitAmountMinor int64
}

// Event is a verified webhook event.
type Event struct {
	Type    EventType
	Session Session
}

// EventType enumerates the webhook events the reconciler cares about.
type EventType string

// EventCheckoutCompleted signals a checkout session finished payment.
const EventCheckoutCompleted EventType = "checkout.session.completed"

// Provider is the outbound payment-provider surface. All calls are bounded by
// the caller's context; failures surface as retryable errors to the caller.
type Provider interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*SessionRef, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListLineItems returns the provider's authoritative line items for a
	// session, in submission order.
	ListLineItems(ctx context.Context, id string) ([]LineItem, error)
}

// EventVerifier verifies a raw webhook body against its signature header and
// decodes the event. Implementations must verify before any parsing of
// untrusted content and return ErrSignatureInvalid on failure.
type EventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
