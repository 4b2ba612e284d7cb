package payment

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/hexshop/checkout/internal/domain/order"
)

// Reconciler consumes signed provider webhook events and records settlements,
// but only after proving that what the provider says was paid is exactly what
// the server originally quoted.
type Reconciler struct {
	orders   order.Repository
	provider Provider
	verifier EventVerifier
	lg       *zap.Logger

	currency string
	merchant string
}

// NewReconciler creates a Reconciler. Currency and merchant identity are the
// deployment constants used for the provider-side digest recomputation.
func NewReconciler(
	orders order.Repository,
	provider Provider,
	verifier EventVerifier,
	lg *zap.Logger,
	currency, merchant string,
) *Reconciler {
	return &Reconciler{
		orders:   orders,
		provider: provider,
		verifier: verifier,
		lg:       lg,
		currency: currency,
		merchant: merchant,
	}
}

// HandleEvent verifies and processes one raw webhook delivery.
//
// A nil return means the event was durably handled — including the ignored
// cases (irrelevant event type, no order context, unknown order) — and the
// provider must receive a success acknowledgment so it stops redelivering.
// Errors (bad signature, digest mismatch, storage failure) signal the
// provider to retry or alert.
//
// The central check recomputes the digest twice: once from the stored order,
// once from the provider-reported line items, amount, and metadata salt. The
// two computations are kept independent on purpose — reusing one digest for
// both sides would silently defeat the integrity check.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := r.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		r.lg.Error("webhook signature verification failed", zap.Error(err))
		return ErrSignatureInvalid
	}

	if event.Type != EventCheckoutCompleted {
		return nil
	}
	sess := event.Session

	orderID := sess.Metadata[MetaOrderID]
	if orderID == "" {
		// Not every session carries order context (e.g. sessions created by
		// other tools against the same account). Acknowledge and move on.
		r.lg.Info("webhook event without order metadata, ignoring",
			zap.String("session_id", sess.ID))
		return nil
	}

	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// The order may belong to a different environment sharing the
			// webhook endpoint. Acknowledged, not an error.
			r.lg.Info("webhook for unknown order, ignoring",
				zap.String("order_id", orderID),
				zap.String("session_id", sess.ID))
			return nil
		}
		return errors.Wrap(err, "load order")
	}

	// Digest A: from the server's stored order.
	storedDigest := order.Digest(o.Currency, o.MerchantIdentity, o.Salt, o.Items, o.TotalMinorUnits)

	// Digest B: from what the provider actually charged. Line items are
	// fetched fresh from the provider rather than trusted from any
	// metadata echo.
	reportedDigest, err := r.reportedDigest(ctx, sess)
	if err != nil {
		return err
	}

	if storedDigest != reportedDigest {
		r.lg.Error("digest mismatch, refusing to settle",
			zap.String("order_id", o.ID),
			zap.String("session_id", sess.ID),
			zap.Int64("reported_amount", sess.AmountTotalMinor),
			zap.Int64("stored_total", o.TotalMinorUnits))
		return ErrDigestMismatch
	}

	created, err := r.orders.CreateTransaction(ctx, &order.Transaction{
		OrderID:               o.ID,
		ProviderTransactionID: sess.TransactionID,
		AmountMinorUnits:      sess.AmountTotalMinor,
		Currency:              sess.Currency,
		CustomerEmail:         sess.CustomerEmail,
	})
	if err != nil {
		return errors.Wrap(err, "record transaction")
	}

	if created {
		r.lg.Info("order settled",
			zap.String("order_id", o.ID),
			zap.String("provider_transaction_id", sess.TransactionID),
			zap.Int64("amount", sess.AmountTotalMinor))
	} else {
		r.lg.Info("duplicate webhook delivery, transaction already recorded",
			zap.String("order_id", o.ID),
			zap.String("provider_transaction_id", sess.TransactionID))
	}
	return nil
}

// reportedDigest recomputes the digest from the provider's authoritative view
// of the session: its listed line items (mapped back to product ids via the
// metadata item-order list), its reported total, and the metadata salt.
func (r *Reconciler) reportedDigest(ctx context.Context, sess Session) (string, error) {
	pids, err := decodeItemOrder(sess.Metadata[MetaItems])
	if err != nil {
		return "", errors.Wrap(err, "item order metadata")
	}

	lines, err := r.provider.ListLineItems(ctx, sess.ID)
	if err != nil {
		return "", errors.Wrap(err, "list line items")
	}
	if len(lines) != len(pids) {
		return "", errors.Errorf("line item count %d does not match metadata item count %d", len(lines), len(pids))
	}

	items := make([]order.Item, len(lines))
	for i, line := range lines {
		items[i] = order.Item{
			ProductID:           pids[i],
			Quantity:            line.Quantity,
			UnitPriceMinorUnits: line.UnitAmountMinor,
		}
	}

	return order.Digest(r.currency, r.merchant, sess.Metadata[MetaSalt], items, sess.AmountTotalMinor), nil
}
